package batch

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/fetch"
)

func model(title string, n int) data.FragmentModel {
	m := data.FragmentModel{Title: title, Referer: "https://www.bilibili.com/bangumi/play/ep1"}
	for i := 0; i < n; i++ {
		m.Fragments = append(m.Fragments, data.StreamFragment{URL: "http://cdn/" + title + "/" + string(rune('a'+i)), Size: 1})
		m.TotalSize++
	}
	return m
}

func jobOptions(t *testing.T, params []any) JobOptions {
	t.Helper()
	opts, ok := params[len(params)-1].(JobOptions)
	if !ok {
		t.Fatalf("last param is %T", params[len(params)-1])
	}
	return opts
}

func TestProjectSingleFragmentKeepsBareTitle(t *testing.T) {
	jobs := Project(model("1 - Arrival", 1), RPCOptions{})
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	opts := jobOptions(t, jobs[0].Params)
	if opts.Out != "1 - Arrival.flv" {
		t.Fatalf("out = %q", opts.Out)
	}
	if jobs[0].ID != "1%20-%20Arrival" {
		t.Fatalf("id = %q", jobs[0].ID)
	}
}

func TestProjectMultiFragmentIndexes(t *testing.T) {
	jobs := Project(model("P1 a", 3), RPCOptions{})
	if len(jobs) != 3 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	for i, want := range []string{"P1 a - 1.flv", "P1 a - 2.flv", "P1 a - 3.flv"} {
		opts := jobOptions(t, jobs[i].Params)
		if opts.Out != want {
			t.Fatalf("job %d out = %q want %q", i, opts.Out, want)
		}
		if opts.Split != 12 || opts.UserAgent != fetch.UserAgent {
			t.Fatalf("job %d options = %#v", i, opts)
		}
		uris, ok := jobs[i].Params[0].([]string)
		if !ok || len(uris) != 1 || uris[0] != "http://cdn/P1 a/"+string(rune('a'+i)) {
			t.Fatalf("job %d uris = %#v", i, jobs[i].Params[0])
		}
	}
	if jobs[2].ID != "P1%20a%20-%203" {
		t.Fatalf("id = %q", jobs[2].ID)
	}
}

func TestProjectSecretToken(t *testing.T) {
	withKey := Project(model("x", 1), RPCOptions{SecretKey: "s3cret"})
	if withKey[0].Params[0] != "token:s3cret" || len(withKey[0].Params) != 3 {
		t.Fatalf("params = %#v", withKey[0].Params)
	}
	without := Project(model("x", 1), RPCOptions{})
	if len(without[0].Params) != 2 {
		t.Fatalf("params = %#v", without[0].Params)
	}
	if _, ok := without[0].Params[0].([]string); !ok {
		t.Fatalf("first param should be the uri list, got %#v", without[0].Params[0])
	}
}

func TestProjectDirOmittedWhenEmpty(t *testing.T) {
	b, _ := json.Marshal(Project(model("x", 1), RPCOptions{})[0].Params)
	if got := string(b); strings.Contains(got, `"dir"`) {
		t.Fatalf("dir present: %s", got)
	}
	b, _ = json.Marshal(Project(model("x", 1), RPCOptions{Dir: "/data/anime"})[0].Params)
	if got := string(b); !strings.Contains(got, `"dir":"/data/anime"`) {
		t.Fatalf("dir missing: %s", got)
	}
	if got := string(b); !strings.Contains(got, `"split":12`) {
		t.Fatalf("split not numeric: %s", got)
	}
}

func TestProjectCollisionPolicy(t *testing.T) {
	cases := []struct {
		policy    CollisionPolicy
		overwrite string
		rename    string
	}{
		{CollisionDefault, "", ""},
		{CollisionError, "false", "false"},
		{CollisionOverwrite, "true", "false"},
		{CollisionRename, "false", "true"},
	}
	for _, tc := range cases {
		opts := jobOptions(t, Project(model("x", 1), RPCOptions{Collision: tc.policy})[0].Params)
		if opts.AllowOverwrite != tc.overwrite || opts.AutoFileRenaming != tc.rename {
			t.Fatalf("%q: got %q/%q", tc.policy, opts.AllowOverwrite, opts.AutoFileRenaming)
		}
	}
	b, _ := json.Marshal(Project(model("x", 1), RPCOptions{})[0].Params)
	if strings.Contains(string(b), "allow-overwrite") {
		t.Fatalf("default policy should not set aria2 options: %s", b)
	}
}

func TestParseCollisionPolicy(t *testing.T) {
	if p, err := ParseCollisionPolicy(" Rename "); err != nil || p != CollisionRename {
		t.Fatalf("got %q, %v", p, err)
	}
	if _, err := ParseCollisionPolicy("skip"); err == nil {
		t.Fatal("expected error")
	}
}

func TestEncodeURIComponent(t *testing.T) {
	tests := map[string]string{
		"P1 a - 2":       "P1%20a%20-%202",
		"it's (fine)!*~": "it's%20(fine)!*~",
		"a+b&c=d/e?f#g":  "a%2Bb%26c%3Dd%2Fe%3Ff%23g",
		"第1话 - 出发":       "%E7%AC%AC1%E8%AF%9D%20-%20%E5%87%BA%E5%8F%91",
	}
	for in, want := range tests {
		if got := encodeURIComponent(in); got != want {
			t.Fatalf("encodeURIComponent(%q) = %q want %q", in, got, want)
		}
	}
}
