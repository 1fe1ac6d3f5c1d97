// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Roster is the session's contact store. The sync engine is the only
// writer; the embedding application reads concurrently, so all access
// goes through a read-write mutex and the accessors return copies.
//
// Besides the contacts themselves the roster tracks a pending list:
// identifiers the gateway has referenced (in a conversation list or as
// a room with an empty member list) that have not yet been resolved to
// a full record. The sync engine batch-resolves the pending list once
// per iteration.
type Roster struct {
	mu         sync.RWMutex
	contacts   map[string]*Contact
	pending    []string
	pendingSet map[string]struct{}
}

// NewRoster creates an empty contact store.
func NewRoster() *Roster {
	return &Roster{
		contacts:   make(map[string]*Contact),
		pendingSet: make(map[string]struct{}),
	}
}

// Merge applies one contact record from the gateway, either a full
// record or a partial update. New identifiers are classified once;
// for known identifiers the raw record is decoded over the existing
// struct, so wire fields absent from a partial update keep their prior
// values. Derived flags are recomputed from the merged bitfields either
// way, and a derived flag is never cleared by an update that omits its
// source field.
//
// selfUserName marks the session's own identity inside room member
// lists. Merge reports the merged contact's identifier, or an error if
// the record could not be decoded at all.
func (r *Roster) Merge(raw json.RawMessage, selfUserName string) (string, error) {
	var probe struct {
		UserName string `json:"UserName"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("wechat: failed to parse contact record: %w", err)
	}
	if probe.UserName == "" {
		return "", fmt.Errorf("wechat: contact record has no UserName")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	contact, known := r.contacts[probe.UserName]
	if !known {
		contact = &Contact{}
	}
	if err := json.Unmarshal(raw, contact); err != nil {
		return "", fmt.Errorf("wechat: failed to parse contact record: %w", err)
	}
	if !known {
		classifyContact(contact)
		r.contacts[contact.UserName] = contact
	}
	deriveContact(contact, selfUserName)

	if contact.IsRoom && len(contact.MemberList) == 0 {
		r.queueLocked(contact.UserName)
	} else {
		r.resolveLocked(contact.UserName)
	}
	return contact.UserName, nil
}

// classifyContact sets the identity flags that are fixed for the
// lifetime of a contact. Runs once, when the identifier first enters
// the roster.
func classifyContact(contact *Contact) {
	contact.IsRoom = IsRoomID(contact.UserName)
	contact.IsFileHelper = contact.UserName == FileHelper
	contact.IsRecommendHelper = contact.UserName == RecommendHelper
	contact.IsNewsApp = contact.UserName == NewsApp
}

// deriveContact recomputes everything derived from wire fields. Runs
// after every merge.
func deriveContact(contact *Contact, selfUserName string) {
	contact.IsBlacklisted = contact.ContactFlag&contactFlagBlacklist != 0
	contact.IsBrand = contact.VerifyFlag&verifyFlagBizBrand != 0
	contact.IsPinned = contact.ContactFlag&contactFlagTopContact != 0
	contact.HasPhotoAlbum = contact.SnsFlag&snsFlagPhotoAlbum != 0
	if contact.IsRoom {
		// Rooms report mute through Statues, not the contact flag.
		contact.IsMuted = contact.Statues == 0
	} else {
		contact.IsMuted = contact.ContactFlag&contactFlagNotifyClose != 0
	}

	if contact.RemarkName != "" {
		contact.DisplayName = renderText(contact.RemarkName)
	} else {
		contact.DisplayName = renderText(contact.NickName)
	}

	for index := range contact.MemberList {
		member := &contact.MemberList[index]
		member.IsSelf = member.UserName == selfUserName
		if member.DisplayName != "" {
			member.DisplayName = renderText(member.DisplayName)
		} else {
			member.DisplayName = renderText(member.NickName)
		}
		member.HeadImgURL = headImgURL(member.UserName, contact.EncryChatRoomID)
	}
}

// Remove deletes a contact. The identifier also leaves the pending
// list: a deleted contact will never resolve.
func (r *Roster) Remove(userName string) {
	r.mu.Lock()
	delete(r.contacts, userName)
	r.resolveLocked(userName)
	r.mu.Unlock()
}

// Get returns a copy of the contact record for userName.
func (r *Roster) Get(userName string) (Contact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	contact, ok := r.contacts[userName]
	if !ok {
		return Contact{}, false
	}
	return *contact, true
}

// Len returns the number of stored contacts.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contacts)
}

// All returns a copy of every stored contact, in map order.
func (r *Roster) All() []Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	contacts := make([]Contact, 0, len(r.contacts))
	for _, contact := range r.contacts {
		contacts = append(contacts, *contact)
	}
	return contacts
}

// QueueIfUnknown adds userName to the pending list unless the roster
// already has a usable record for it. A room with no members does not
// count as usable.
func (r *Roster) QueueIfUnknown(userName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if contact, ok := r.contacts[userName]; ok {
		if !contact.IsRoom || len(contact.MemberList) > 0 {
			return
		}
	}
	r.queueLocked(userName)
}

// Pending returns a snapshot of the unresolved identifiers, in queue
// order.
func (r *Roster) Pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pending := make([]string, len(r.pending))
	copy(pending, r.pending)
	return pending
}

func (r *Roster) queueLocked(userName string) {
	if _, queued := r.pendingSet[userName]; queued {
		return
	}
	r.pendingSet[userName] = struct{}{}
	r.pending = append(r.pending, userName)
}

func (r *Roster) resolveLocked(userName string) {
	if _, queued := r.pendingSet[userName]; !queued {
		return
	}
	delete(r.pendingSet, userName)
	for index, id := range r.pending {
		if id == userName {
			r.pending = append(r.pending[:index], r.pending[index+1:]...)
			break
		}
	}
}
