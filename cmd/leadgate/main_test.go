package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	want := map[string][]string{
		"serve":   nil,
		"worker":  nil,
		"migrate": {"up", "down", "version"},
		"admin":   {"resync-owners", "repair-group", "put-user", "whois"},
	}
	for name, subs := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("missing command %q: %v", name, err)
		}
		for _, s := range subs {
			sub, _, err := root.Find([]string{name, s})
			if err != nil || sub.Name() != s {
				t.Errorf("missing command %q %q: %v", name, s, err)
			}
		}
	}
}

func TestRepairGroupRequiresKey(t *testing.T) {
	t.Setenv("LEADGATE_STORE_DRIVER", "memory")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--config", t.TempDir() + "/none.yaml", "admin", "repair-group", "--inline"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "--key is required") {
		t.Fatalf("err = %v, want missing key", err)
	}
}

func TestRepairGroupInlineOnMemoryStore(t *testing.T) {
	t.Setenv("LEADGATE_STORE_DRIVER", "memory")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", t.TempDir() + "/none.yaml", "admin", "repair-group", "--inline", "--key", "555"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), `group "555" repaired`) {
		t.Errorf("output = %q", out.String())
	}
}

func TestWhoisPrivilegedUserOnMemoryStore(t *testing.T) {
	t.Setenv("LEADGATE_STORE_DRIVER", "memory")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", t.TempDir() + "/none.yaml", "admin", "whois", "Administrator"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "PRIVILEGED  true") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.test, ,http://b.test ")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("splitList = %v", got)
	}
	if splitList("") != nil {
		t.Error("expected nil for empty input")
	}
}
