package cluster_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xraph/datastruct/cluster"
)

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		a, b cluster.Version
		want int
	}{
		{cluster.Version{Major: 1}, cluster.Version{Major: 1}, 0},
		{cluster.Version{Major: 1}, cluster.Version{Major: 2}, -1},
		{cluster.Version{Major: 3}, cluster.Version{Major: 2, Minor: 9}, 1},
		{cluster.Version{Major: 2, Minor: 1}, cluster.Version{Major: 2, Minor: 2}, -1},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
	if cluster.Zero.String() != "0.0" {
		t.Errorf("Zero.String() = %q", cluster.Zero.String())
	}
}

func TestIsTopologyChange(t *testing.T) {
	left := &cluster.NodeLeftError{Node: "n2"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sentinel", cluster.ErrTopologyChanged, true},
		{"node left", left, true},
		{"wrapped node left", fmt.Errorf("purge: %w", left), true},
		{"broadcast with churn", &cluster.BroadcastError{Op: "x", Failures: map[cluster.NodeID]error{
			"n1": errors.New("boom"),
			"n2": left,
		}}, true},
		{"broadcast without churn", &cluster.BroadcastError{Op: "x", Failures: map[cluster.NodeID]error{
			"n1": errors.New("boom"),
		}}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cluster.IsTopologyChange(tt.err); got != tt.want {
				t.Errorf("IsTopologyChange = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBroadcastError_MessageListsNodes(t *testing.T) {
	err := &cluster.BroadcastError{Op: "block", Failures: map[cluster.NodeID]error{
		"b": errors.New("two"),
		"a": errors.New("one"),
	}}
	msg := err.Error()
	if !strings.Contains(msg, "[a: one] [b: two]") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestDataNodes(t *testing.T) {
	nodes := []cluster.Node{{ID: "a"}, {ID: "client", Observer: true}, {ID: "b"}}
	got := cluster.IDs(cluster.DataNodes(nodes))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("DataNodes = %v", got)
	}
}
