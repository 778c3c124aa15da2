package batch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tinoosan/bilibatch/internal/aria2"
	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/fetch"
)

// CollisionPolicy decides what aria2 does when the output file exists.
// The zero value leaves aria2's own settings in charge.
type CollisionPolicy string

const (
	CollisionDefault   CollisionPolicy = ""
	CollisionError     CollisionPolicy = "error"
	CollisionOverwrite CollisionPolicy = "overwrite"
	CollisionRename    CollisionPolicy = "rename"
)

// ParseCollisionPolicy accepts "", error, overwrite and rename.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CollisionDefault, CollisionError, CollisionOverwrite, CollisionRename:
		return p, nil
	}
	return CollisionDefault, fmt.Errorf("unknown collision policy %q", s)
}

// options returns the allow-overwrite and auto-file-renaming values.
func (p CollisionPolicy) options() (string, string) {
	switch p {
	case CollisionError:
		return "false", "false"
	case CollisionOverwrite:
		return "true", "false"
	case CollisionRename:
		return "false", "true"
	}
	return "", ""
}

// RPCOptions are the aria2 settings applied to every projected job.
type RPCOptions struct {
	SecretKey string
	Dir       string
	Collision CollisionPolicy
}

// JobOptions is the aria2.addUri options object of a projected job.
type JobOptions struct {
	Referer   string `json:"referer"`
	UserAgent string `json:"user-agent"`
	Out       string `json:"out"`
	Split     int    `json:"split"`
	Dir       string `json:"dir,omitempty"`

	AllowOverwrite   string `json:"allow-overwrite,omitempty"`
	AutoFileRenaming string `json:"auto-file-renaming,omitempty"`
}

// Project builds one aria2.addUri job per fragment of m. Fragments of a
// multi-fragment model get a " - N" suffix (1-based) in id and file name.
func Project(m data.FragmentModel, opts RPCOptions) []aria2.Job {
	overwrite, rename := opts.Collision.options()
	jobs := make([]aria2.Job, 0, len(m.Fragments))
	for i, f := range m.Fragments {
		name := m.Title
		if len(m.Fragments) > 1 {
			name = fmt.Sprintf("%s - %d", m.Title, i+1)
		}
		params := make([]any, 0, 3)
		if opts.SecretKey != "" {
			params = append(params, "token:"+opts.SecretKey)
		}
		params = append(params, []string{f.URL}, JobOptions{
			Referer:   m.Referer,
			UserAgent: fetch.UserAgent,
			Out:       name + ".flv",
			Split:     SplitFactor,
			Dir:       opts.Dir,

			AllowOverwrite:   overwrite,
			AutoFileRenaming: rename,
		})
		jobs = append(jobs, aria2.Job{ID: encodeURIComponent(name), Params: params})
	}
	return jobs
}

var componentUnescaper = strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

// encodeURIComponent escapes s the way browsers do for a URI component:
// everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
