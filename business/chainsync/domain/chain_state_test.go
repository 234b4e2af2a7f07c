package domain

import (
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewChainState_UnionOfFetches(t *testing.T) {
	p := Patch{
		Chain:      FieldSet{FieldBlockNumber: "100", FieldChainID: "1"},
		Contract:   FieldSet{FieldHashtag: "#zilliqa", FieldCadenceSeconds: "86400"},
		ObservedAt: t0,
	}

	s := NewChainState("0xabc", p)

	if !reflect.DeepEqual(s.ChainFields.Values(), p.Chain) {
		t.Fatalf("chain fields = %v, want %v", s.ChainFields.Values(), p.Chain)
	}
	if !reflect.DeepEqual(s.ContractFields.Values(), p.Contract) {
		t.Fatalf("contract fields = %v, want %v", s.ContractFields.Values(), p.Contract)
	}
	if !s.UpdatedAt.Equal(t0) || !s.CreatedAt.Equal(t0) {
		t.Fatalf("timestamps = %v/%v, want %v", s.CreatedAt, s.UpdatedAt, t0)
	}
}

func TestNewChainState_FailedFetchSeedsEmpty(t *testing.T) {
	s := NewChainState("0xabc", Patch{Chain: FieldSet{FieldBlockNumber: "7"}, ObservedAt: t0})

	if s.ContractFields == nil || len(s.ContractFields) != 0 {
		t.Fatalf("contract fields should be empty, got %v", s.ContractFields)
	}
}

func TestApply_PartialPatchKeepsOtherFields(t *testing.T) {
	s := NewChainState("0xabc", Patch{
		Chain:      FieldSet{FieldBlockNumber: "100"},
		Contract:   FieldSet{FieldHashtag: "#old", FieldRewardPerAction: "5"},
		ObservedAt: t0,
	})

	t1 := t0.Add(time.Minute)
	changed := s.Apply(Patch{Chain: FieldSet{FieldBlockNumber: "101"}, Contract: nil, ObservedAt: t1})

	if !changed {
		t.Fatal("expected change")
	}
	if v, _ := s.Chain(FieldBlockNumber); v != "101" {
		t.Fatalf("block_number = %s, want 101", v)
	}
	if v, _ := s.Contract(FieldHashtag); v != "#old" {
		t.Fatalf("hashtag = %s, want #old", v)
	}
	if !s.ContractFields[FieldHashtag].ObservedAt.Equal(t0) {
		t.Fatal("untouched contract field must keep its ObservedAt")
	}
	if !s.UpdatedAt.Equal(t1) {
		t.Fatalf("UpdatedAt = %v, want %v", s.UpdatedAt, t1)
	}
}

func TestApply_Idempotent(t *testing.T) {
	p := Patch{Chain: FieldSet{FieldBlockNumber: "5"}, Contract: FieldSet{FieldHashtag: "#x"}, ObservedAt: t0}
	s := NewChainState("0xabc", p)
	before := s.Clone()

	if s.Apply(p) {
		t.Fatal("second application of the same patch must be a no-op")
	}
	if !reflect.DeepEqual(before, s) {
		t.Fatalf("state changed: %+v vs %+v", before, s)
	}
}

func TestApply_LastWriterWinsRegardlessOfOrder(t *testing.T) {
	early := Patch{Chain: FieldSet{FieldBlockNumber: "10"}, Contract: FieldSet{FieldHashtag: "#early"}, ObservedAt: t0}
	late := Patch{Chain: FieldSet{FieldBlockNumber: "11"}, Contract: FieldSet{FieldHashtag: "#late"}, ObservedAt: t0.Add(time.Second)}

	a := NewChainState("0xabc", early)
	a.Apply(late)

	b := NewChainState("0xabc", late)
	b.Apply(early)

	for _, s := range []ChainState{a, b} {
		if v, _ := s.Chain(FieldBlockNumber); v != "11" {
			t.Fatalf("block_number = %s, want 11", v)
		}
		if v, _ := s.Contract(FieldHashtag); v != "#late" {
			t.Fatalf("hashtag = %s, want #late", v)
		}
		if !s.UpdatedAt.Equal(late.ObservedAt) {
			t.Fatalf("UpdatedAt = %v, want %v", s.UpdatedAt, late.ObservedAt)
		}
	}
	if !reflect.DeepEqual(a.ChainFields, b.ChainFields) || !reflect.DeepEqual(a.ContractFields, b.ContractFields) {
		t.Fatal("merge must be commutative for distinct ObservedAt")
	}
}

func TestClone_IsDeep(t *testing.T) {
	s := NewChainState("0xabc", Patch{Chain: FieldSet{FieldBlockNumber: "1"}, ObservedAt: t0})
	c := s.Clone()
	c.ChainFields[FieldBlockNumber] = Field{Value: "2"}

	if v, _ := s.Chain(FieldBlockNumber); v != "1" {
		t.Fatal("clone shares map with original")
	}
}

func TestPatch_HasData(t *testing.T) {
	if (Patch{}).HasData() {
		t.Fatal("empty patch has no data")
	}
	if !(Patch{Contract: FieldSet{}}).HasData() {
		t.Fatal("empty non-nil field set is a successful fetch")
	}
}

func TestSuperseded_ReportsNewerStoredFields(t *testing.T) {
	s := NewChainState("0xabc", Patch{
		Chain:      FieldSet{FieldBlockNumber: "200"},
		Contract:   FieldSet{FieldHashtag: "#new"},
		ObservedAt: t0.Add(time.Minute),
	})

	// a run whose clock stepped back
	older := Patch{
		Chain:      FieldSet{FieldBlockNumber: "150", FieldChainID: "1"},
		Contract:   FieldSet{FieldHashtag: "#old"},
		ObservedAt: t0,
	}
	s.Apply(older)

	got := s.Superseded(older)
	want := []string{"chain." + FieldBlockNumber, "contract." + FieldHashtag}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("superseded = %v, want %v", got, want)
	}
	if v, _ := s.Chain(FieldBlockNumber); v != "200" {
		t.Fatalf("block number = %q, want the newer 200", v)
	}
	if v, _ := s.Chain(FieldChainID); v != "1" {
		t.Fatalf("chain id = %q, want 1", v)
	}

	current := Patch{Chain: FieldSet{FieldBlockNumber: "201"}, ObservedAt: t0.Add(2 * time.Minute)}
	s.Apply(current)
	if got := s.Superseded(current); len(got) != 0 {
		t.Fatalf("nothing should be superseded, got %v", got)
	}
}
