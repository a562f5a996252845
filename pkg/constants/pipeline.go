package constants

// Worker pipeline contract
const (
	// DoneSentinel marks terminal completion in a worker's combined log.
	DoneSentinel = "Done with analysis"

	PipelineEntrypoint = "/nodetaint/pipeline/run_pipeline.sh"
	PersistMountPath   = "/persist"

	DefaultPipelineLogLevel = "info"
	DefaultCacheDir         = "/persist/cache"
	DefaultZ3Path           = "/nodetaint/z3/bin/z3"
	DefaultBound            = "lower"

	// DefaultRange is the global work range used when start is not given one.
	DefaultRange = 1000000

	ProgressIndexFile = "index.txt"
	ResultsFile       = "results.json"
	CrawlLogsDir      = "crawl_logs"
)
