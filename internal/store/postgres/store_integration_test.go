// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cheatgate Contributors

//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/cheatgate/cheatgate/internal/cheat"
	"github.com/cheatgate/cheatgate/internal/member"
	"github.com/cheatgate/cheatgate/internal/store/postgres"
	"github.com/cheatgate/cheatgate/internal/usage"
)

// uniqueEmail keeps specs independent on the shared database.
func uniqueEmail() string {
	return fmt.Sprintf("%s@test.example", ulid.Make().String())
}

func logRows(ctx context.Context, email, code string) int {
	c, err := pgx.Connect(ctx, testDSN)
	Expect(err).NotTo(HaveOccurred())
	defer c.Close(ctx)

	var n int
	Expect(c.QueryRow(ctx,
		`SELECT count(*) FROM redemption_log WHERE member_email = $1 AND code = $2`,
		email, code).Scan(&n)).To(Succeed())
	return n
}

var _ = Describe("MemberRepository", func() {
	ctx := context.Background()

	It("round-trips and updates members", func() {
		repo := testStore.Members()
		email := uniqueEmail()

		_, err := repo.GetByEmail(ctx, email)
		Expect(err).To(MatchError(member.ErrNotFound))

		Expect(repo.Upsert(ctx, &member.Member{Email: email, Tier: "gold"})).To(Succeed())
		Expect(repo.Upsert(ctx, &member.Member{Email: email, Tier: "platinum", Blacklisted: true})).To(Succeed())

		got, err := repo.GetByEmail(ctx, email)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Tier).To(Equal("platinum"))
		Expect(got.Blacklisted).To(BeTrue())
	})
})

var _ = Describe("CodeRepository", func() {
	ctx := context.Background()

	It("stores tiers and opaque payloads", func() {
		repo := testStore.Codes()
		code := "IT_" + ulid.Make().String()

		Expect(repo.Upsert(ctx, &cheat.Code{
			Code:         code,
			Active:       true,
			AllowedTiers: []string{"gold", "platinum"},
			AmountLimit:  3,
			Effect:       "unlock",
			Payload:      json.RawMessage(`{"items":["sword"],"n":1}`),
		})).To(Succeed())

		got, err := repo.GetByCode(ctx, code)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.AllowedTiers).To(ConsistOf("gold", "platinum"))
		Expect(got.AmountLimit).To(Equal(3))
		Expect(string(got.Payload)).To(MatchJSON(`{"items":["sword"],"n":1}`))
	})

	It("returns not found for unknown codes", func() {
		_, err := testStore.Codes().GetByCode(ctx, "NOPE_"+ulid.Make().String())
		Expect(err).To(MatchError(cheat.ErrNotFound))
	})
})

var _ = Describe("UsageRepository", func() {
	ctx := context.Background()
	var repo *postgres.UsageRepository

	BeforeEach(func() {
		repo = testStore.Usage()
	})

	It("grants up to the limit then refuses", func() {
		email := uniqueEmail()

		first, err := repo.Consume(ctx, email, "SPRING23", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal(usage.Consumption{Granted: true, UsedCount: 1, Created: true}))

		second, err := repo.Consume(ctx, email, "SPRING23", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(usage.Consumption{Granted: true, UsedCount: 2}))

		third, err := repo.Consume(ctx, email, "SPRING23", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(third).To(Equal(usage.Consumption{Granted: false, UsedCount: 2}))

		rec, err := repo.Get(ctx, email, "SPRING23")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.UsedCount).To(Equal(2))
		Expect(logRows(ctx, email, "SPRING23")).To(Equal(2))
	})

	It("never creates a record for a zero limit", func() {
		email := uniqueEmail()

		got, err := repo.Consume(ctx, email, "LOCKED", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Granted).To(BeFalse())

		_, err = repo.Get(ctx, email, "LOCKED")
		Expect(err).To(MatchError(usage.ErrNotFound))
		Expect(logRows(ctx, email, "LOCKED")).To(BeZero())
	})

	It("does not re-validate records above a lowered limit", func() {
		email := uniqueEmail()
		for range 3 {
			_, err := repo.Consume(ctx, email, "SHRINK", 5)
			Expect(err).NotTo(HaveOccurred())
		}

		got, err := repo.Consume(ctx, email, "SHRINK", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(usage.Consumption{Granted: false, UsedCount: 3}))
	})

	DescribeTable("serialises concurrent consumers per key",
		func(attempts, limit int) {
			email := uniqueEmail()
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				granted int
				errs    []error
			)
			for range attempts {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					c, err := repo.Consume(ctx, email, "RACE", limit)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
						return
					}
					if c.Granted {
						granted++
					}
				}()
			}
			wg.Wait()

			Expect(errs).To(BeEmpty())
			Expect(granted).To(Equal(min(attempts, limit)))

			rec, err := repo.Get(ctx, email, "RACE")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.UsedCount).To(Equal(min(attempts, limit)))
			Expect(logRows(ctx, email, "RACE")).To(Equal(min(attempts, limit)))
		},
		Entry("more attempts than the limit", 50, 5),
		Entry("fewer attempts than the limit", 8, 20),
		Entry("limit of one", 30, 1),
	)
})

var _ = Describe("Migrator", func() {
	It("reports every embedded migration as applied", func() {
		migrator, err := postgres.NewMigrator(testDSN)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(migrator.Close)

		all, err := postgres.MigrationVersions()
		Expect(err).NotTo(HaveOccurred())

		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Dirty).To(BeFalse())
		Expect(st.Applied).To(Equal(all))
		Expect(st.Pending).To(BeEmpty())
	})

	It("is idempotent on Up", func() {
		migrator, err := postgres.NewMigrator(testDSN)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(migrator.Close)
		Expect(migrator.Up()).To(Succeed())
	})
})
