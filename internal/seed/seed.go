// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

// Package seed loads member and cheat code definitions from YAML and
// provisions them into a store. Applying the same file twice is a no-op.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
)

// FormatConstraint is the range of seed format versions this build reads.
const FormatConstraint = "^1.0.0"

// File is a seed document.
type File struct {
	Version string   `yaml:"version" json:"version" jsonschema:"description=Seed format version (semver)"`
	Members []Member `yaml:"members,omitempty" json:"members,omitempty"`
	Codes   []Code   `yaml:"codes,omitempty" json:"codes,omitempty"`
}

// Member is a provisioned account.
type Member struct {
	Email       string `yaml:"email" json:"email" jsonschema:"minLength=3"`
	Tier        string `yaml:"tier,omitempty" json:"tier,omitempty"`
	Blacklisted bool   `yaml:"blacklisted,omitempty" json:"blacklisted,omitempty"`
}

// Code is a cheat code definition. Active defaults to true.
type Code struct {
	Code         string   `yaml:"code" json:"code" jsonschema:"minLength=1"`
	Active       *bool    `yaml:"active,omitempty" json:"active,omitempty"`
	AllowedTiers []string `yaml:"allowed_tiers,omitempty" json:"allowed_tiers,omitempty" jsonschema:"uniqueItems=true"`
	AmountLimit  int      `yaml:"amount_limit" json:"amount_limit" jsonschema:"minimum=0"`
	Effect       string   `yaml:"effect,omitempty" json:"effect,omitempty"`
	Payload      any      `yaml:"payload,omitempty" json:"payload,omitempty" jsonschema:"description=Opaque JSON returned on redemption"`
}

// Summary counts what Apply provisioned.
type Summary struct {
	Members int
	Codes   int
}

// Load reads, validates and parses the seed file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return f, nil
}

// Parse validates data against the schema and format version, then decodes it.
func Parse(data []byte) (*File, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, oops.Code("SEED_INVALID_YAML").Wrap(err)
	}

	if err := checkVersion(f.Version); err != nil {
		return nil, err
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

func checkVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return oops.Code("SEED_VERSION_INVALID").With("version", v).Wrap(err)
	}
	constraint, err := semver.NewConstraint(FormatConstraint)
	if err != nil {
		return oops.Code("SEED_VERSION_INVALID").With("constraint", FormatConstraint).Wrap(err)
	}
	if !constraint.Check(version) {
		return oops.Code("SEED_VERSION_UNSUPPORTED").
			With("version", v).
			With("supported", FormatConstraint).
			Errorf("seed format version %s is not supported (want %s)", v, FormatConstraint)
	}
	return nil
}

// check applies the domain rules the schema cannot express.
func (f *File) check() error {
	emails := make(map[string]bool, len(f.Members))
	for i := range f.Members {
		m := f.Members[i].toDomain()
		if err := m.Validate(); err != nil {
			return oops.With("member_index", i).Wrap(err)
		}
		if emails[m.Email] {
			return oops.Code("SEED_DUPLICATE").With("email", m.Email).Errorf("member %q listed twice", m.Email)
		}
		emails[m.Email] = true
	}

	codes := make(map[string]bool, len(f.Codes))
	for i := range f.Codes {
		c, err := f.Codes[i].toDomain()
		if err != nil {
			return oops.With("code_index", i).Wrap(err)
		}
		if err := c.Validate(); err != nil {
			return oops.With("code_index", i).Wrap(err)
		}
		if codes[c.Code] {
			return oops.Code("SEED_DUPLICATE").With("code", c.Code).Errorf("code %q listed twice", c.Code)
		}
		codes[c.Code] = true
	}
	return nil
}

func (m Member) toDomain() *member.Member {
	return &member.Member{Email: m.Email, Tier: m.Tier, Blacklisted: m.Blacklisted}
}

func (c Code) toDomain() (*cheat.Code, error) {
	active := true
	if c.Active != nil {
		active = *c.Active
	}
	out := &cheat.Code{
		Code:         c.Code,
		Active:       active,
		AllowedTiers: c.AllowedTiers,
		AmountLimit:  c.AmountLimit,
		Effect:       c.Effect,
	}
	if c.Payload != nil {
		raw, err := json.Marshal(c.Payload)
		if err != nil {
			return nil, oops.Code("SEED_INVALID_PAYLOAD").With("code", c.Code).Wrap(err)
		}
		out.Payload = raw
	}
	return out, nil
}

// Apply upserts every member and code in f. It stops at the first failure;
// entries already written stay written and a rerun converges.
func Apply(ctx context.Context, f *File, members member.Provisioner, codes cheat.Provisioner) (Summary, error) {
	var sum Summary
	for i := range f.Members {
		m := f.Members[i].toDomain()
		if err := members.Upsert(ctx, m); err != nil {
			return sum, oops.Code("SEED_APPLY_FAILED").
				With("operation", "upsert member").
				With("email", m.Email).
				Wrap(err)
		}
		sum.Members++
	}
	for i := range f.Codes {
		c, err := f.Codes[i].toDomain()
		if err != nil {
			return sum, err
		}
		if err := codes.Upsert(ctx, c); err != nil {
			return sum, oops.Code("SEED_APPLY_FAILED").
				With("operation", "upsert cheat code").
				With("code", c.Code).
				Wrap(err)
		}
		sum.Codes++
	}
	return sum, nil
}
