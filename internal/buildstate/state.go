// Package buildstate projects a module and its build pointers into named slots,
// each holding at most one module build and the repository build it belongs to.
package buildstate

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/foundation"
)

// SlotName identifies one of the five build slots of a module.
type SlotName string

const (
	SlotLastSuccessful SlotName = "lastSuccessful"
	SlotLastNonSkipped SlotName = "lastNonSkipped"
	SlotLast           SlotName = "last"
	SlotInProgress     SlotName = "inProgress"
	SlotPending        SlotName = "pending"
)

// SlotNames lists the slots in their canonical order.
var SlotNames = []SlotName{SlotLastSuccessful, SlotLastNonSkipped, SlotLast, SlotInProgress, SlotPending}

// Ref is a raw, possibly partial build reference as produced by a joined query.
type Ref struct {
	ModuleBuild     *build.ModuleBuild
	RepositoryBuild *build.RepositoryBuild
}

// Row is one module with the raw references of each slot.
type Row struct {
	Module build.Module
	Refs   map[SlotName]Ref
}

// Slot holds the builds occupying one named position.
type Slot struct {
	ModuleBuild     foundation.Option[build.ModuleBuild]     `json:"moduleBuild"`
	RepositoryBuild foundation.Option[build.RepositoryBuild] `json:"repositoryBuild"`
}

// NewSlot builds a slot; references without a persisted id are absent.
func NewSlot(ref Ref) Slot {
	var s Slot
	if ref.ModuleBuild != nil && ref.ModuleBuild.ID != 0 {
		s.ModuleBuild = foundation.Some(*ref.ModuleBuild)
	}
	if ref.RepositoryBuild != nil && ref.RepositoryBuild.ID != 0 {
		rb := *ref.RepositoryBuild
		if rb.Commit != nil {
			c := *rb.Commit
			rb.Commit = &c
		}
		s.RepositoryBuild = foundation.Some(rb)
	}
	return s
}

// IsEmpty reports whether neither build is present.
func (s Slot) IsEmpty() bool { return s.ModuleBuild.IsNone() && s.RepositoryBuild.IsNone() }

// Equal compares slot contents by value.
func (s Slot) Equal(o Slot) bool {
	if s.ModuleBuild.IsSome() != o.ModuleBuild.IsSome() || s.RepositoryBuild.IsSome() != o.RepositoryBuild.IsSome() {
		return false
	}
	if mb, ok := s.ModuleBuild.Get(); ok && mb != o.ModuleBuild.Unwrap() {
		return false
	}
	if rb, ok := s.RepositoryBuild.Get(); ok && !repositoryBuildEqual(rb, o.RepositoryBuild.Unwrap()) {
		return false
	}
	return true
}

func repositoryBuildEqual(a, b build.RepositoryBuild) bool {
	if (a.Commit == nil) != (b.Commit == nil) {
		return false
	}
	if a.Commit != nil && *a.Commit != *b.Commit {
		return false
	}
	a.Commit, b.Commit = nil, nil
	return a == b
}

// ModuleState is a read-only snapshot of one module's builds.
type ModuleState struct {
	Module build.Module      `json:"module"`
	Slots  map[SlotName]Slot `json:"slots"`
}

// NewModuleState normalizes row into a snapshot. Missing slots are empty.
func NewModuleState(row Row) ModuleState {
	ms := ModuleState{Module: row.Module, Slots: make(map[SlotName]Slot, len(SlotNames))}
	for _, name := range SlotNames {
		ms.Slots[name] = NewSlot(row.Refs[name])
	}
	return ms
}

// Slot returns the named slot.
func (m ModuleState) Slot(name SlotName) Slot { return m.Slots[name] }

func (m ModuleState) LastSuccessful() Slot { return m.Slot(SlotLastSuccessful) }
func (m ModuleState) LastNonSkipped() Slot { return m.Slot(SlotLastNonSkipped) }
func (m ModuleState) Last() Slot           { return m.Slot(SlotLast) }
func (m ModuleState) InProgress() Slot     { return m.Slot(SlotInProgress) }
func (m ModuleState) Pending() Slot        { return m.Slot(SlotPending) }

// Equal compares the slot values only. The module itself is not part of the
// comparison, so two modules whose builds match are equal.
func (m ModuleState) Equal(o ModuleState) bool {
	for _, name := range SlotNames {
		if !m.Slot(name).Equal(o.Slot(name)) {
			return false
		}
	}
	return true
}

// Hash is an xxhash digest over the slot values, consistent with Equal.
func (m ModuleState) Hash() uint64 {
	d := xxhash.New()
	for _, name := range SlotNames {
		writeSlot(d, m.Slot(name))
	}
	return d.Sum64()
}

func writeSlot(d *xxhash.Digest, s Slot) {
	if mb, ok := s.ModuleBuild.Get(); ok {
		writeInt(d, 1)
		writeInt(d, mb.ID, mb.ModuleID, mb.RepoBuildID, int64(mb.BuildNumber), mb.StartTimestamp, mb.EndTimestamp)
		writeString(d, string(mb.State))
	} else {
		writeInt(d, 0)
	}
	if rb, ok := s.RepositoryBuild.Get(); ok {
		writeInt(d, 1)
		writeInt(d, rb.ID, rb.BranchID, int64(rb.BuildNumber), rb.StartTimestamp, rb.EndTimestamp)
		writeString(d, string(rb.State), string(rb.Trigger.Type), rb.Trigger.ID)
		if rb.Commit != nil {
			writeInt(d, 1)
			writeString(d, rb.Commit.SHA, rb.Commit.AuthorEmail, rb.Commit.CommitterEmail, rb.Commit.Message)
		} else {
			writeInt(d, 0)
		}
	} else {
		writeInt(d, 0)
	}
}

func writeInt(d *xxhash.Digest, vs ...int64) {
	var buf [8]byte
	for _, v := range vs {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = d.Write(buf[:])
	}
}

// writeString length-prefixes each value so adjacent fields cannot collide.
func writeString(d *xxhash.Digest, vs ...string) {
	for _, v := range vs {
		writeInt(d, int64(len(v)))
		_, _ = d.WriteString(v)
	}
}
