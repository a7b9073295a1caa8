package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/models"
	"wabridge/internal/privacy"
	"wabridge/internal/security"
	watypes "wabridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

const (
	mappingSubdir     = "lidmap"
	unifiedDocName    = "lid-map.json"
	legacyLIDPrefix   = "lid_"
	legacyPhonePrefix = "phone_"
)

// identityRecord is the on-disk shape of one legacy per-mapping mirror file.
type identityRecord struct {
	LID   string `json:"lid"`
	Phone string `json:"phone"`
}

// IdentityResolver maps opaque per-device identifiers (LIDs) to stable phone
// numbers. The in-memory table is authoritative; it is backed by a unified
// keyed-by-LID document plus legacy per-mapping mirror files, and filled on
// demand from the protocol library's contact directory. A mapping is never
// overwritten with a different phone once set, so a contact's reported
// identity cannot flap.
type IdentityResolver struct {
	mu            sync.Mutex
	table         map[string]string
	pendingMirror []identityRecord
	dirty         bool
	flushTimer    *time.Timer

	dir      string
	debounce time.Duration
	enc      *encryptor
	logger   *logrus.Logger
}

// NewIdentityResolver loads persisted mappings from storageDir: the unified
// document first, then any legacy per-identifier records not already known.
func NewIdentityResolver(storageDir string, logger *logrus.Logger) (*IdentityResolver, error) {
	enc, err := newEncryptor()
	if err != nil {
		return nil, err
	}

	r := &IdentityResolver{
		table:    make(map[string]string),
		dir:      filepath.Join(storageDir, mappingSubdir),
		debounce: time.Duration(constants.DefaultMappingFlushDebounceMs) * time.Millisecond,
		enc:      enc,
		logger:   logger,
	}

	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create mapping directory: %w", err)
	}

	if err := r.loadUnified(); err != nil {
		return nil, err
	}
	r.loadLegacy()

	logger.WithField("mappings", len(r.table)).Info("Identity mappings loaded")
	return r, nil
}

func (r *IdentityResolver) loadUnified() error {
	raw, err := os.ReadFile(filepath.Join(r.dir, unifiedDocName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read mapping document: %w", err)
	}

	plain, err := r.enc.decrypt(raw)
	if err != nil {
		return fmt.Errorf("failed to decrypt mapping document: %w", err)
	}

	if err := json.Unmarshal(plain, &r.table); err != nil {
		return fmt.Errorf("failed to parse mapping document: %w", err)
	}
	return nil
}

// loadLegacy absorbs per-identifier records from earlier persistence
// formats. Unreadable records are skipped; they were always best-effort.
func (r *IdentityResolver) loadLegacy() {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, legacyLIDPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}

		record, err := r.readLegacyRecord(name)
		if err != nil {
			r.logger.WithError(err).WithField("file", name).Debug("Skipping unreadable legacy mapping record")
			continue
		}

		if record.LID != "" && record.Phone != "" {
			if _, exists := r.table[record.LID]; !exists {
				r.table[record.LID] = record.Phone
				r.dirty = true
			}
		}
	}
}

func (r *IdentityResolver) readLegacyRecord(name string) (*identityRecord, error) {
	if err := security.ValidateFileWithinDir(name, r.dir); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return nil, err
	}

	var record identityRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Resolve returns the phone number behind a LID, consulting the in-memory
// table, then the protocol library's contact directory, then legacy on-disk
// records. When nothing resolves, the LID itself is returned as a best-effort
// answer, not an error. dir may be nil while disconnected.
func (r *IdentityResolver) Resolve(ctx context.Context, dir watypes.Directory, lid string) string {
	r.mu.Lock()
	if phone, ok := r.table[lid]; ok {
		r.mu.Unlock()
		return phone
	}
	r.mu.Unlock()

	if dir != nil {
		if phone, ok := dir.CachedPhoneForLID(ctx, lid); ok && phone != "" {
			r.Record(lid, phone)
			return phone
		}
	}

	if record, err := r.readLegacyRecord(legacyLIDPrefix + lid + ".json"); err == nil && record.Phone != "" {
		// Absorbed into the unified store only; the legacy format is
		// read-compatible, not written.
		r.Record(lid, record.Phone)
		return record.Phone
	}

	return lid
}

// Record stores a lid→phone mapping, first-write-wins. Returns true when the
// table changed. Persistence is debounced; bursty contact syncs coalesce
// into a single disk write.
func (r *IdentityResolver) Record(lid, phone string) bool {
	if lid == "" || phone == "" || lid == phone {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.table[lid]; ok {
		if existing != phone {
			r.logger.WithFields(logrus.Fields{
				"lid":      privacy.MaskPhoneNumber(lid),
				"existing": privacy.MaskPhoneNumber(existing),
			}).Debug("Ignoring conflicting identity mapping")
		}
		return false
	}

	r.table[lid] = phone
	r.pendingMirror = append(r.pendingMirror, identityRecord{LID: lid, Phone: phone})
	r.dirty = true
	r.scheduleFlushLocked()
	return true
}

// PhoneForLID reports the mapped phone for a LID without touching any
// fallback source.
func (r *IdentityResolver) PhoneForLID(lid string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	phone, ok := r.table[lid]
	return phone, ok
}

// Size reports the number of known mappings.
func (r *IdentityResolver) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}

// ResolveNumbers performs forward resolution: each phone number is looked up
// in the network directory, and LID-form identities are recorded in the
// table on the way through.
func (r *IdentityResolver) ResolveNumbers(ctx context.Context, dir watypes.Directory, phones []string) (map[string]models.LookupResult, error) {
	entries, err := dir.LookupPhones(ctx, phones)
	if err != nil {
		return nil, err
	}

	results := make(map[string]models.LookupResult, len(entries))
	for _, entry := range entries {
		if !entry.Registered {
			results[entry.Query] = models.LookupResult{Error: "not registered on WhatsApp"}
			continue
		}

		if entry.IsLID {
			user, _ := splitJID(entry.JID)
			r.Record(user, entry.Query)
		}

		results[entry.Query] = models.LookupResult{JID: entry.JID, IsLID: entry.IsLID}
	}
	return results, nil
}

// scheduleFlushLocked arms the debounced write. A pending timer is replaced,
// never accumulated, so a burst of inserts produces one disk write.
func (r *IdentityResolver) scheduleFlushLocked() {
	if r.flushTimer != nil {
		r.flushTimer.Stop()
	}
	r.flushTimer = time.AfterFunc(r.debounce, func() {
		if err := r.Flush(); err != nil {
			r.logger.WithError(err).Warn("Failed to persist identity mappings")
		}
	})
}

// Flush writes the unified document and any per-mapping mirror records that
// accumulated since the last write.
func (r *IdentityResolver) Flush() error {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]string, len(r.table))
	for lid, phone := range r.table {
		snapshot[lid] = phone
	}
	mirrors := r.pendingMirror
	r.pendingMirror = nil
	r.dirty = false
	r.mu.Unlock()

	if err := r.writeUnified(snapshot); err != nil {
		return err
	}

	for _, record := range mirrors {
		r.writeMirror(record)
	}
	return nil
}

func (r *IdentityResolver) writeUnified(snapshot map[string]string) error {
	plain, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode mapping document: %w", err)
	}

	data, err := r.enc.encrypt(plain)
	if err != nil {
		return fmt.Errorf("failed to encrypt mapping document: %w", err)
	}

	target := filepath.Join(r.dir, unifiedDocName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write mapping document: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace mapping document: %w", err)
	}
	return nil
}

// writeMirror writes the two small compatibility records for one mapping.
// Mirror failures are logged, not returned; the unified document is the
// source of truth.
func (r *IdentityResolver) writeMirror(record identityRecord) {
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}

	for _, name := range []string{
		legacyLIDPrefix + record.LID + ".json",
		legacyPhonePrefix + record.Phone + ".json",
	} {
		if err := security.ValidateFileWithinDir(name, r.dir); err != nil {
			r.logger.WithError(err).Debug("Skipping mirror record with unsafe name")
			continue
		}
		if err := os.WriteFile(filepath.Join(r.dir, name), raw, 0o600); err != nil {
			r.logger.WithError(err).Debug("Failed to write mirror record")
		}
	}
}

// Close stops the debounce timer and performs a final best-effort flush.
func (r *IdentityResolver) Close() error {
	r.mu.Lock()
	if r.flushTimer != nil {
		r.flushTimer.Stop()
		r.flushTimer = nil
	}
	r.mu.Unlock()

	return r.Flush()
}
