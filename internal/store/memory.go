// Package store provides the account and relation lookups backing the
// presence service. Records are held in memory; authoritative account
// data lives in the platform's account service and is loaded at startup
// or pushed in by whatever process owns it.
package store

import (
	"context"
	"sync"

	"github.com/riftgate/server/internal/presence"
)

// RelationStatus is the lifecycle state of a relation between accounts.
type RelationStatus string

const (
	RelationAccepted RelationStatus = "ACCEPTED"
	RelationPending  RelationStatus = "PENDING"
)

// Relation is one directed edge in the relation graph.
type Relation struct {
	AccountID string
	Status    RelationStatus
}

// Memory is a mutex-guarded in-memory account and relation store. It
// implements presence.AccountGateway and presence.RelationGateway.
type Memory struct {
	mu        sync.RWMutex
	accounts  map[string]presence.Account
	relations map[string][]Relation
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]presence.Account),
		relations: make(map[string][]Relation),
	}
}

// PutAccount inserts or replaces an account record.
func (m *Memory) PutAccount(accountID string, account presence.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[accountID] = account
}

// FindAccount returns the account record for the id.
//
// Postcondition: Returns presence.ErrAccountNotFound for an unknown id.
func (m *Memory) FindAccount(_ context.Context, accountID string) (presence.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return presence.Account{}, presence.ErrAccountNotFound
	}
	return account, nil
}

// SetRelation records a directed relation from accountID to friendID,
// replacing any existing edge between the pair.
func (m *Memory) SetRelation(accountID, friendID string, status RelationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := m.relations[accountID]
	for i, edge := range edges {
		if edge.AccountID == friendID {
			edges[i].Status = status
			return
		}
	}
	m.relations[accountID] = append(edges, Relation{AccountID: friendID, Status: status})
}

// SetMutualRelation records the relation in both directions.
func (m *Memory) SetMutualRelation(a, b string, status RelationStatus) {
	m.SetRelation(a, b, status)
	m.SetRelation(b, a, status)
}

// ListAcceptedRelations returns the account ids with an ACCEPTED edge
// from the given account. PENDING edges are filtered out.
func (m *Memory) ListAcceptedRelations(_ context.Context, accountID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var accepted []string
	for _, edge := range m.relations[accountID] {
		if edge.Status == RelationAccepted {
			accepted = append(accepted, edge.AccountID)
		}
	}
	return accepted, nil
}
