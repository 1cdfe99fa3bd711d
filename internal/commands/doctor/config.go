package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/deskbus/internal/core/config"
)

// ConfigCheck validates the configuration and the data directory.
type ConfigCheck struct {
	config     *config.Config
	configPath string
}

// NewConfigCheck creates a new configuration check.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{
		config:     cfg,
		configPath: configPath,
	}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if c.config == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config loaded",
			Status: StatusFail,
			Detail: "configuration not loaded",
		})
		return result
	}

	if err := c.config.ValidateDeep(c.configPath); err != nil {
		result.Items = append(result.Items, failures(err)...)
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config valid",
			Status: StatusPass,
			Detail: fmt.Sprintf("%d system channel(s), %d binding(s)", len(c.config.Channels), len(c.config.Bindings)),
		})
	}

	for _, w := range c.config.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += " (" + w.Item + ")"
		}
		result.Items = append(result.Items, CheckItem{
			Label:  label,
			Status: StatusWarn,
			Detail: w.Message,
		})
	}

	result.Items = append(result.Items, dataDirItem(c.config.DataDir))
	return result
}

func failures(err error) []CheckItem {
	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return []CheckItem{{Label: "validation", Status: StatusFail, Detail: err.Error()}}
	}

	items := make([]CheckItem, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		label := fe.Field
		if label == "" {
			label = "validation"
		}
		items = append(items, CheckItem{Label: label, Status: StatusFail, Detail: fe.Err.Error()})
	}
	return items
}

// dataDirItem reports whether channel memberships can be persisted.
func dataDirItem(dir string) CheckItem {
	item := CheckItem{Label: "Data directory", Detail: dir}

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		item.Status = StatusWarn
		item.Detail = dir + " does not exist yet; serve creates it"
		return item
	}

	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		item.Status = StatusFail
		item.Detail = fmt.Sprintf("%s is not writable: %v", dir, err)
		return item
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	item.Status = StatusPass
	return item
}
