package logging

const (
	BaseDataDir   = "data"
	LogsDir       = "logs"
	LogFileFormat = "2006-01-02.log" // for daily files
	TimeFormat    = "2006-01-02 15:04:05"
)

type ProcessName string

const (
	ApiServerProcess ProcessName = "apiserver"
	SweeperProcess   ProcessName = "sweeper"
	CrowdctlProcess  ProcessName = "crowdctl"
	TestProcess      ProcessName = "test"
)

type LoggerConfig struct {
	LogDir        string
	ProcessName   ProcessName
	IsDevelopment bool
}

func NewDefaultConfig(processName ProcessName) LoggerConfig {
	return LoggerConfig{
		LogDir:        BaseDataDir,
		ProcessName:   processName,
		IsDevelopment: true,
	}
}
