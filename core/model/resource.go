package model

// ResourceType identifies a class of shared port resources.
type ResourceType string

const (
	ResourceCrane   ResourceType = "crane"
	ResourceTug     ResourceType = "tug"
	ResourcePilot   ResourceType = "pilot"
	ResourceLabor   ResourceType = "labor"
	ResourceMooring ResourceType = "mooring"
)

// ResourceUnit is a pool of identical units of one resource type, shared
// across berths. Allocation is time scoped.
type ResourceUnit struct {
	ID        string       `json:"id"`
	Type      ResourceType `json:"type"`
	Capacity  int          `json:"capacity"`
	Available bool         `json:"available"`
}

// ResourceAllocation binds part of a ResourceUnit's capacity to a schedule
// for a sub-interval of its window.
type ResourceAllocation struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource_id"`
	ScheduleID string `json:"schedule_id"`
	Window     Window `json:"window"`
	Quantity   int    `json:"quantity"`
}
