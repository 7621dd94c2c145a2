package workspace

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/catalog"
	"github.com/AyalaKaguya/yoloflow/internal/project"
	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// URLResolver maps a catalog variant to a fetchable URL. The backend
// registry satisfies it.
type URLResolver interface {
	DownloadURL(m catalog.ModelInfo) (string, error)
}

// Downloader fetches model weights into a project's pretrain bucket.
type Downloader interface {
	FetchModel(ctx context.Context, p *project.Project, m catalog.ModelInfo) (project.ModelEntry, error)
}

// HTTPDownloader downloads weights over HTTP, staging into a temp file so
// a partial transfer never lands in the project.
type HTTPDownloader struct {
	Resolver URLResolver
	Client   *http.Client
	Logger   *zap.Logger
}

func (d *HTTPDownloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 10 * time.Minute}
}

// FetchModel resolves the variant's URL, downloads the weight file, and
// registers it with the project's model registry.
func (d *HTTPDownloader) FetchModel(ctx context.Context, p *project.Project, m catalog.ModelInfo) (project.ModelEntry, error) {
	url, err := d.Resolver.DownloadURL(m)
	if err != nil {
		return project.ModelEntry{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return project.ModelEntry{}, fmt.Errorf("fetch %s: %w", m.Filename, err)
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return project.ModelEntry{}, fmt.Errorf("fetch %s: %w", m.Filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return project.ModelEntry{}, fmt.Errorf("fetch %s: unexpected status %s", m.Filename, resp.Status)
	}

	tmp, err := os.CreateTemp("", "yoloflow-download-*")
	if err != nil {
		return project.ModelEntry{}, fmt.Errorf("fetch %s: %w", m.Filename, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return project.ModelEntry{}, fmt.Errorf("fetch %s: %w", m.Filename, err)
	}
	if d.Logger != nil {
		d.Logger.Info("model weights downloaded",
			zap.String("filename", m.Filename),
			zap.Int64("bytes", n))
	}

	taskType := p.TaskType()
	if len(m.Tasks) > 0 && !m.SupportsTask(taskType) {
		taskType = m.Tasks[0]
	}
	entry := project.ModelEntry{
		Name:        m.Name,
		Filename:    m.Filename,
		Description: m.Description,
		Parameters:  parameterCount(m.Parameters),
		TaskType:    taskType,
		Source:      task.SourceImported,
	}
	return p.Models().AddFromInfo(tmp.Name(), entry)
}

// parameterCount converts a catalog size label like "2.6M" into an
// absolute count; unparsable labels yield 0.
func parameterCount(label string) int64 {
	label = strings.TrimSpace(label)
	if label == "" {
		return 0
	}
	mult := float64(1)
	switch label[len(label)-1] {
	case 'K', 'k':
		mult = 1e3
		label = label[:len(label)-1]
	case 'M', 'm':
		mult = 1e6
		label = label[:len(label)-1]
	case 'B', 'b':
		mult = 1e9
		label = label[:len(label)-1]
	}
	v, err := strconv.ParseFloat(label, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(v * mult))
}
