package train

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/drewdunne/releasetrain/internal/label"
)

func TestSelector_Select(t *testing.T) {
	host := newHost()

	late := proposal(5, "bob", "Late")
	late.CreatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	early := proposal(9, "carol", "Early")
	early.CreatedAt = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	notReady := proposal(7, "dave", "Not ready")
	notReady.Labels = []string{"category:Fixes"}
	closed := proposal(8, "erin", "Closed")
	closed.State = "closed"

	host.AddProposal(late, nil)
	host.AddProposal(early, nil)
	host.AddProposal(notReady, nil)
	host.AddProposal(closed, nil)

	selector := &Selector{Host: host, Classifier: label.Classifier{Ready: "c:ready", CategoryPrefix: "category:"}}
	got, err := selector.Select(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if want := []int{9, 5}; !reflect.DeepEqual(numbers(got), want) {
		t.Errorf("Select() = %v, want %v", numbers(got), want)
	}
}

func TestSelector_Select_None(t *testing.T) {
	selector := &Selector{Host: newHost(), Classifier: label.Classifier{Ready: "c:ready"}}

	got, err := selector.Select(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Select() = %v, want none", numbers(got))
	}
}

func TestSelector_Select_Error(t *testing.T) {
	host := newHost()
	boom := errors.New("boom")
	host.Fail["ListPullRequests"] = boom

	selector := &Selector{Host: host, Classifier: label.Classifier{Ready: "c:ready"}}
	_, err := selector.Select(context.Background(), "acme", "widgets")

	var ext *ExternalServiceError
	if !errors.As(err, &ext) || !errors.Is(err, boom) {
		t.Errorf("Select() error = %v, want ExternalServiceError wrapping boom", err)
	}
}
