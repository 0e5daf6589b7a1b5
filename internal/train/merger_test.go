package train

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/drewdunne/releasetrain/internal/provider"
)

func TestMergeEngine_Merge_Chained(t *testing.T) {
	host := newHost()
	host.SetBranch("prepare", "abc123")
	host.MergeSHAs = []string{"m1", "m2"}

	first := proposal(10, "alice", "First")
	second := proposal(11, "bob", "Second")
	host.AddProposal(first, map[string]string{"a.go": "a"})
	host.AddProposal(second, map[string]string{"b.go": "b"})

	engine := &MergeEngine{Host: host}
	result, err := engine.Merge(context.Background(), "acme", "widgets", "prepare", "abc123", []provider.PullRequest{first, second})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Tip != "m2" {
		t.Errorf("Tip = %q, want %q", result.Tip, "m2")
	}
	if result.Outcomes[0].Commit != "m1" || result.Outcomes[1].Commit != "m2" {
		t.Errorf("Outcomes = %+v", result.Outcomes)
	}

	// The second merge lands on top of the first
	for _, path := range []string{"a.go", "b.go", "CHANGELOG.md"} {
		if _, ok := host.File("m2", path); !ok {
			t.Errorf("tip is missing %s", path)
		}
	}

	wantCalls := []string{"MergeBranches prepare sha10", "MergeBranches prepare sha11"}
	if got := host.CallsWithPrefix("MergeBranches"); !reflect.DeepEqual(got, wantCalls) {
		t.Errorf("calls = %v, want %v", got, wantCalls)
	}
}

func TestMergeEngine_Merge_Empty(t *testing.T) {
	host := newHost()
	host.SetBranch("prepare", "abc123")

	engine := &MergeEngine{Host: host}
	result, err := engine.Merge(context.Background(), "acme", "widgets", "prepare", "abc123", nil)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Tip != "abc123" {
		t.Errorf("Tip = %q, want trunk %q", result.Tip, "abc123")
	}
	if len(result.Outcomes) != 0 || len(result.Merged()) != 0 {
		t.Errorf("Outcomes = %+v, want none", result.Outcomes)
	}
}

func TestMergeEngine_Merge_SkipsConflicts(t *testing.T) {
	host := newHost()
	host.SetBranch("prepare", "abc123")
	host.MergeSHAs = []string{"m1", "m2"}

	first := proposal(10, "alice", "First")
	conflicting := proposal(20, "carol", "Conflicting")
	vanished := proposal(21, "dave", "Vanished")
	vanished.HeadSHA = "gone"
	last := proposal(30, "bob", "Last")
	host.AddProposal(first, nil)
	host.AddProposal(conflicting, nil)
	host.AddProposal(last, nil)
	host.Conflicts["sha20"] = true

	engine := &MergeEngine{Host: host}
	result, err := engine.Merge(context.Background(), "acme", "widgets", "prepare", "abc123",
		[]provider.PullRequest{first, conflicting, vanished, last})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if result.Tip != "m2" {
		t.Errorf("Tip = %q, want %q", result.Tip, "m2")
	}
	if got := numbers(result.Merged()); !reflect.DeepEqual(got, []int{10, 30}) {
		t.Errorf("Merged() = %v, want [10 30]", got)
	}

	skipped := result.Outcomes[1]
	if skipped.Merged() || skipped.Commit != "" {
		t.Fatalf("outcome for #20 = %+v, want skipped", skipped)
	}
	if skipped.Err.Number != 20 || !errors.Is(skipped.Err, provider.ErrMergeConflict) {
		t.Errorf("skip error = %v, want merge conflict for #20", skipped.Err)
	}
	if !errors.Is(result.Outcomes[2].Err, provider.ErrNotFound) {
		t.Errorf("skip error = %v, want not found for #21", result.Outcomes[2].Err)
	}
}

func TestMergeEngine_Merge_HeadRefFallback(t *testing.T) {
	host := newHost()
	host.SetBranch("prepare", "abc123")

	pr := proposal(10, "alice", "First")
	host.AddProposal(pr, nil)
	pr.HeadSHA = ""

	engine := &MergeEngine{Host: host}
	if _, err := engine.Merge(context.Background(), "acme", "widgets", "prepare", "abc123", []provider.PullRequest{pr}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := []string{"MergeBranches prepare feature-10"}
	if got := host.CallsWithPrefix("MergeBranches"); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestMergeEngine_Merge_AbortsOnUnexpectedError(t *testing.T) {
	host := newHost()
	host.SetBranch("prepare", "abc123")
	boom := errors.New("service unavailable")
	host.Fail["MergeBranches"] = boom

	pr := proposal(10, "alice", "First")
	host.AddProposal(pr, nil)

	engine := &MergeEngine{Host: host}
	_, err := engine.Merge(context.Background(), "acme", "widgets", "prepare", "abc123", []provider.PullRequest{pr, proposal(11, "bob", "")})

	var ext *ExternalServiceError
	if !errors.As(err, &ext) || !errors.Is(err, boom) {
		t.Fatalf("Merge() error = %v, want ExternalServiceError wrapping %v", err, boom)
	}
	if calls := host.CallsWithPrefix("MergeBranches"); len(calls) != 1 {
		t.Errorf("calls = %v, want the run to stop after the first failure", calls)
	}
}

func TestMergeEngine_Merge_Cancelled(t *testing.T) {
	host := newHost()
	host.SetBranch("prepare", "abc123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &MergeEngine{Host: host}
	_, err := engine.Merge(ctx, "acme", "widgets", "prepare", "abc123", []provider.PullRequest{proposal(10, "alice", "")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Merge() error = %v, want context.Canceled", err)
	}
}
