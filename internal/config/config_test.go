package config

import (
	"testing"

	"github.com/fantap/fantap/internal/hook"
	"github.com/fantap/fantap/internal/proxy"
	"github.com/fantap/fantap/internal/trace"
)

func TestParse(t *testing.T) {
	doc := []byte(`
proxies:
  "9000":
    name: web
    description: local web proxy
    targets: [9100, "backend.example:9200", ":9300"]
    echo: [0, 2, 2]
    format: json
    autostart: true
    trace_file: /tmp/web.trace
  "8000":
    targets: ["127.0.0.1:8100"]
    echo: false
  not-a-port:
    targets: [9100]
  "70000":
    targets: [9100]
  "8500":
    targets: []
`)

	cfgs, err := Parse(doc, Defaults{})
	if err != nil {
		t.Fatal(err)
	}

	// Three entries are invalid (bad key, out-of-range port, no targets).
	if len(cfgs) != 2 {
		t.Fatalf("got %d configs, want 2", len(cfgs))
	}

	// Sorted by port.
	if cfgs[0].ListenPort != 8000 || cfgs[1].ListenPort != 9000 {
		t.Fatalf("bad ports: %d, %d", cfgs[0].ListenPort, cfgs[1].ListenPort)
	}

	plain := cfgs[0]
	if plain.Echo.Mode != proxy.EchoNone {
		t.Fatalf("echo false should map to EchoNone, got %v", plain.Echo.Mode)
	}
	if plain.Format != trace.FormatText {
		t.Fatalf("missing format should default to text, got %q", plain.Format)
	}
	if plain.Writer != nil {
		t.Fatal("no trace_file means no writer")
	}

	web := cfgs[1]
	if web.Name != "web" || !web.AutoStart {
		t.Fatalf("bad entry: %+v", web)
	}
	wantTargets := []proxy.Target{
		{Host: "127.0.0.1", Port: 9100},
		{Host: "backend.example", Port: 9200},
		{Host: "127.0.0.1", Port: 9300},
	}
	if len(web.Targets) != len(wantTargets) {
		t.Fatalf("got %d targets, want %d", len(web.Targets), len(wantTargets))
	}
	for i, want := range wantTargets {
		if web.Targets[i] != want {
			t.Fatalf("target %d: got %+v want %+v", i, web.Targets[i], want)
		}
	}

	if web.Echo.Mode != proxy.EchoIndices || len(web.Echo.Indices) != 2 {
		t.Fatalf("bad echo policy: %+v", web.Echo)
	}
	if !web.Echo.Includes(2) || web.Echo.Includes(1) {
		t.Fatal("echo index set misparsed")
	}

	fw, ok := web.Writer.(*hook.FileWriter)
	if !ok {
		t.Fatalf("trace_file should wire a FileWriter, got %T", web.Writer)
	}
	if fw.Path != "/tmp/web.trace" || fw.Format != trace.FormatJSON {
		t.Fatalf("bad file writer: %+v", fw)
	}
}

func TestParseEchoDefaults(t *testing.T) {
	doc := []byte(`
proxies:
  "9000":
    targets: [9100]
  "9001":
    targets: [9100]
    echo: true
`)

	cfgs, err := Parse(doc, Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("got %d configs", len(cfgs))
	}

	if cfgs[0].Echo.Mode != proxy.EchoFirst {
		t.Fatalf("absent echo should default to first target, got %v", cfgs[0].Echo.Mode)
	}
	if cfgs[1].Echo.Mode != proxy.EchoAll {
		t.Fatalf("echo true should map to EchoAll, got %v", cfgs[1].Echo.Mode)
	}
}

func TestParseBadEntriesAreSkippedNotFatal(t *testing.T) {
	doc := []byte(`
proxies:
  "9000":
    targets: [9100]
    format: carrier-pigeon
  "9001":
    targets: [9100]
`)

	cfgs, err := Parse(doc, Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfgs) != 1 || cfgs[0].ListenPort != 9001 {
		t.Fatalf("expected only the valid entry, got %+v", cfgs)
	}
}

func TestParseMalformedTargetSkipsEntry(t *testing.T) {
	doc := []byte(`
proxies:
  "9000":
    targets: ["no-port-here"]
  "9001":
    targets: [9100]
`)

	cfgs, err := Parse(doc, Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfgs) != 1 || cfgs[0].ListenPort != 9001 {
		t.Fatalf("expected only the valid entry, got %+v", cfgs)
	}
}

func TestParseDuplicatePortKeys(t *testing.T) {
	doc := []byte(`
proxies:
  "9000":
    targets: [9100]
  " 9000":
    targets: [9200]
`)

	cfgs, err := Parse(doc, Defaults{})
	if err != nil {
		t.Fatal(err)
	}

	// " 9000" and "9000" are distinct YAML keys but the same port; only one
	// config may come out, or two instances would fight over the bind.
	if len(cfgs) != 1 || cfgs[0].ListenPort != 9000 {
		t.Fatalf("expected one config for port 9000, got %+v", cfgs)
	}
}

func TestParseMalformedDocument(t *testing.T) {
	if _, err := Parse([]byte("proxies: ["), Defaults{}); err == nil {
		t.Fatal("expected parse error")
	}
}
