// Package monitor provides the business boundary for slawatch's SLA-breach
// detection. It defines the Service (sweep lifecycle, single-writer state),
// Engine (window building, response resolution, policy decisions, dispatch),
// StateStore + Persistence interface, and domain models.
package monitor
