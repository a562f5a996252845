package constants

// K8s label keys
const (
	LabelManagedBy = "managed-by" // Manager identifier
	LabelComponent = "component"  // Component type

	ManagedByCrawlfleet = "crawlfleet"
	ComponentWorker     = "crawl-worker"
)

// Pod phase constants (from K8s)
const (
	PodPhaseRunning   = "Running"
	PodPhasePending   = "Pending"
	PodPhaseSucceeded = "Succeeded"
	PodPhaseFailed    = "Failed"
	PodPhaseUnknown   = "Unknown"
)
