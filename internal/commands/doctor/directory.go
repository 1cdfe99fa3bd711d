package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hay-kot/deskbus/internal/directory"
)

// DirectoryCheck lists the catalog and fetches every declared manifest.
type DirectoryCheck struct {
	dir     directory.Directory
	openErr error
	timeout time.Duration
}

// NewDirectoryCheck creates a directory check from the result of
// directory.Open. A nil dir without an error reports a warning.
func NewDirectoryCheck(dir directory.Directory, openErr error, timeout time.Duration) *DirectoryCheck {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DirectoryCheck{dir: dir, openErr: openErr, timeout: timeout}
}

func (c *DirectoryCheck) Name() string {
	return "Directory"
}

func (c *DirectoryCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.openErr != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Catalog",
			Status: StatusFail,
			Detail: c.openErr.Error(),
		})
		return result
	}

	if c.dir == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Catalog",
			Status: StatusWarn,
			Detail: "no directory configured",
		})
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	apps, err := c.dir.ListApplications(ctx)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Catalog",
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  "Catalog",
		Status: StatusPass,
		Detail: fmt.Sprintf("%d application(s)", len(apps)),
	})

	for _, app := range apps {
		if app.ManifestURL == "" {
			continue
		}
		item := CheckItem{Label: "Manifest " + app.Name, Status: StatusPass}
		m, err := c.dir.FetchManifest(ctx, app.ManifestURL)
		switch {
		case errors.Is(err, directory.ErrNotFound):
			item.Status = StatusFail
			item.Detail = app.ManifestURL + " not found"
		case err != nil:
			item.Status = StatusFail
			item.Detail = err.Error()
		case m.StartupApp.URL == "" && app.StartURL == "":
			item.Status = StatusWarn
			item.Detail = "no startup url; the app cannot be launched"
		}
		result.Items = append(result.Items, item)
	}

	return result
}
