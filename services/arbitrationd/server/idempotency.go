package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const idempotencyHeader = "Idempotency-Key"

var bucketIdempotency = []byte("idempotency")

// ErrIdempotencyMismatch is returned when a key is reused with a different
// request body.
var ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")

// IdempotencyRecord is a cached response.
type IdempotencyRecord struct {
	ID          string    `json:"id"`
	RequestHash string    `json:"requestHash"`
	StatusCode  int       `json:"statusCode"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"storedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IdempotencyStore persists responses keyed by caller and Idempotency-Key.
type IdempotencyStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// OpenIdempotencyStore opens (and migrates) the Bolt file at path.
func OpenIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the underlying Bolt handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the cached response for key. Expired records are removed.
func (s *IdempotencyStore) Get(key string) (IdempotencyRecord, bool, error) {
	var record IdempotencyRecord
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if s.now().After(record.ExpiresAt) {
			record = IdempotencyRecord{}
			return bucket.Delete([]byte(key))
		}
		found = true
		return nil
	})
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return record, found, nil
}

// Put stores a response for key.
func (s *IdempotencyStore) Put(key, requestHash string, status int, body []byte) (IdempotencyRecord, error) {
	now := s.now().UTC()
	record := IdempotencyRecord{
		ID:          uuid.NewString(),
		RequestHash: requestHash,
		StatusCode:  status,
		Body:        append([]byte(nil), body...),
		StoredAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put([]byte(key), encoded)
	})
	return record, err
}

// Middleware replays stored responses for POST requests carrying an
// Idempotency-Key. Keys are scoped to the caller and the route path.
func (s *IdempotencyStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if s == nil || r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		subject := "anonymous"
		if claims, err := FromContext(r.Context()); err == nil {
			subject = claims.Key()
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "unable to read request body", "invalid-argument")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		requestHash := ethcrypto.Keccak256Hash(body).Hex()
		scoped := subject + "|" + r.URL.Path + "|" + key

		record, found, err := s.Get(scoped)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "idempotency lookup failed", "internal")
			return
		}
		if found {
			if record.RequestHash != requestHash {
				writeJSONError(w, http.StatusUnprocessableEntity, ErrIdempotencyMismatch.Error(), "idempotency")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.Header().Set("X-Idempotency-Record", record.ID)
			w.WriteHeader(record.StatusCode)
			_, _ = w.Write(record.Body)
			return
		}

		var captured bytes.Buffer
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		// Server errors and timing failures are not cached; both can succeed
		// on a later retry with the same key.
		if status >= http.StatusInternalServerError || status == http.StatusTooEarly {
			return
		}
		_, _ = s.Put(scoped, requestHash, status, captured.Bytes())
	})
}
