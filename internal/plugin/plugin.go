package plugin

import "context"

// SettingField describes one entry of a plugin's settings form
type SettingField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"` // text, password, number, bool, list
	Value    any    `json:"value"`
	Required bool   `json:"required,omitempty"`
	Help     string `json:"help,omitempty"`
}

// Row is one rendered line of a plugin page
type Row map[string]any

// Plugin is the lifecycle every hosted component implements
type Plugin interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	State() bool
	DescribeConfig() []SettingField
}

// Scheduled plugins are run by the host on a cron schedule
type Scheduled interface {
	Plugin
	// Schedule returns a cron expression or "@every <duration>"
	Schedule() string
	Run(ctx context.Context)
}

// Paged plugins render a page of rows
type Paged interface {
	Page(ctx context.Context) ([]Row, error)
}

// Reloadable plugins re-read their configuration
type Reloadable interface {
	Reload(ctx context.Context) error
}
