package cfg

type Cfg struct {
	// Application configuration
	FeedsDir    string
	WorkerCount int
	Serve       bool
	Port        string

	// Publishing configuration
	PublishMode           string
	ProductionHostPattern string
	LocalDir              string
	RemoteHost            string
	RemoteUser            string
	RemoteDir             string
	SSHKey                string
	SSHKnownHosts         string

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
