// Package identity maps finding authors to reviewer and messaging identities.
package identity

import (
	"os"
	"strings"
	"sync"

	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// Resolver looks authors up in two flat JSON tables: email to platform id
// and email to messaging id. Tables are read once and cached for the life
// of the process. A missing table is empty.
type Resolver struct {
	platformPath    string
	messagingPath   string
	defaultReviewer string

	once      sync.Once
	loadErr   error
	platform  map[string]string
	messaging map[string]string
	byID      map[string]string
}

// NewResolver returns a Resolver. defaultReviewer is used whenever an author
// cannot be mapped to a platform id.
func NewResolver(platformPath, messagingPath, defaultReviewer string) *Resolver {
	return &Resolver{
		platformPath:    platformPath,
		messagingPath:   messagingPath,
		defaultReviewer: defaultReviewer,
	}
}

func (r *Resolver) load() error {
	r.once.Do(func() {
		var err error
		if r.platform, err = readTable(r.platformPath); err != nil {
			r.loadErr = err
			return
		}
		if r.messaging, err = readTable(r.messagingPath); err != nil {
			r.loadErr = err
			return
		}
		r.byID = make(map[string]string, len(r.platform))
		for email, id := range r.platform {
			r.byID[strings.ToLower(id)] = email
		}
	})
	return r.loadErr
}

func readTable(path string) (map[string]string, error) {
	table := map[string]string{}
	if path == "" {
		return table, nil
	}
	if err := pipeline.ReadJSON(path, &table); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fault.Identity("load identity table "+path, err)
	}
	return table, nil
}

// EmailForToken resolves an author token to an email. The token is either an
// email itself or a platform id present in the reviewer table.
func (r *Resolver) EmailForToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" || r.load() != nil {
		return "", false
	}
	if strings.Contains(token, "@") {
		return token, true
	}
	email, ok := r.byID[strings.ToLower(token)]
	return email, ok
}

// ResolveReviewer returns the platform id for token, falling back to the
// default reviewer. mapped is false when the fallback was used.
func (r *Resolver) ResolveReviewer(token string) (id string, mapped bool) {
	email, ok := r.EmailForToken(token)
	if !ok {
		return r.defaultReviewer, false
	}
	if id, ok := r.lookup(r.platform, email); ok {
		return id, true
	}
	return r.defaultReviewer, false
}

// ResolveMessagingID returns the messaging id for email. Absence means there
// is no direct-message destination.
func (r *Resolver) ResolveMessagingID(email string) (string, bool) {
	if r.load() != nil {
		return "", false
	}
	return r.lookup(r.messaging, email)
}

// Err reports a table that exists but could not be parsed.
func (r *Resolver) Err() error {
	return r.load()
}

func (r *Resolver) lookup(table map[string]string, email string) (string, bool) {
	if v, ok := table[email]; ok && v != "" {
		return v, true
	}
	lower := strings.ToLower(email)
	for k, v := range table {
		if strings.ToLower(k) == lower && v != "" {
			return v, true
		}
	}
	return "", false
}
