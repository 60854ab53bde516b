// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
)

// createAccount inserts a fresh account with a unique email.
func createAccount(ctx context.Context) *auth.Account {
	account, err := auth.NewAccount(ulid.Make().String()+"@example.com", "digest", "Test", "User")
	Expect(err).NotTo(HaveOccurred())
	account.CreatedAt = account.CreatedAt.Truncate(time.Microsecond)
	account.UpdatedAt = account.CreatedAt
	Expect(postgres.NewAccountRepository(testPool).Create(ctx, account)).To(Succeed())
	return account
}

var _ = Describe("AccountRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.AccountRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewAccountRepository(testPool)
	})

	It("round-trips an account", func() {
		account := createAccount(ctx)

		got, err := repo.GetByEmail(ctx, account.Email)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(account.ID))
		Expect(got.CreatedAt.Equal(account.CreatedAt)).To(BeTrue())
		Expect(got.LastLoginAt).To(BeNil())
	})

	It("rejects a duplicate email", func() {
		account := createAccount(ctx)
		clone, err := auth.NewAccount(account.Email, "", "", "")
		Expect(err).NotTo(HaveOccurred())

		err = repo.Create(ctx, clone)
		Expect(errors.Is(err, auth.ErrDuplicate)).To(BeTrue())
	})

	It("persists updates", func() {
		account := createAccount(ctx)
		account.EmailVerified = true
		account.RecordLogin(time.Now().Truncate(time.Microsecond))
		Expect(repo.Update(ctx, account)).To(Succeed())

		got, err := repo.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.EmailVerified).To(BeTrue())
		Expect(got.LastLoginAt).NotTo(BeNil())
	})
})

var _ = Describe("SessionStore over RefreshTokenRepository", func() {
	var (
		ctx      context.Context
		account  *auth.Account
		sessions *auth.SessionStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		account = createAccount(ctx)
		var err error
		sessions, err = auth.NewSessionStore(postgres.NewRefreshTokenRepository(testPool))
		Expect(err).NotTo(HaveOccurred())
	})

	It("rotates a token exactly once under parallel presentation", func() {
		raw := "race-" + ulid.Make().String()
		_, err := sessions.RecordIssuance(ctx, account.ID, raw, auth.Device{UserAgent: "ginkgo"})
		Expect(err).NotTo(HaveOccurred())

		const workers = 24
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			wins    int
			revoked int
		)
		start := make(chan struct{})
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				<-start
				_, err := sessions.Rotate(ctx, raw)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, auth.ErrRevoked):
					revoked++
				}
			}()
		}
		close(start)
		wg.Wait()

		Expect(wins).To(Equal(1))
		Expect(revoked).To(Equal(workers - 1))
	})

	It("reports unknown tokens as not found", func() {
		_, err := sessions.Rotate(ctx, "never-issued-"+ulid.Make().String())
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("revokes all live tokens idempotently", func() {
		for i := range 3 {
			_, err := sessions.RecordIssuance(ctx, account.ID, "all-"+ulid.Make().String()+string(rune('a'+i)), auth.Device{})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(sessions.RevokeAll(ctx, account.ID)).To(Succeed())
		Expect(sessions.RevokeAll(ctx, account.ID)).To(Succeed())

		var live int
		Expect(testPool.QueryRow(ctx,
			`SELECT COUNT(*) FROM refresh_tokens WHERE account_id = $1 AND revoked = FALSE`,
			account.ID.String()).Scan(&live)).To(Succeed())
		Expect(live).To(BeZero())
	})
})

var _ = Describe("VerificationChallenge over VerificationCodeRepository", func() {
	It("exhausts a code after the attempt limit", func() {
		ctx := context.Background()
		account := createAccount(ctx)
		challenge, err := auth.NewVerificationChallenge(
			postgres.NewVerificationCodeRepository(testPool),
			[]byte("integration-code-secret-0123456789"),
			auth.WithCodeGenerator(func() (string, error) { return "123456", nil }),
		)
		Expect(err).NotTo(HaveOccurred())

		_, err = challenge.Issue(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())

		for range auth.MaxVerificationAttempts {
			Expect(challenge.Check(ctx, account.ID, "000000")).NotTo(Succeed())
		}
		err = challenge.Check(ctx, account.ID, "123456")
		Expect(errors.Is(err, auth.ErrAttemptsExceeded)).To(BeTrue())

		n, err := challenge.IssuedSince(ctx, account.ID, time.Now().Add(-time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("accepts a correct code once", func() {
		ctx := context.Background()
		account := createAccount(ctx)
		challenge, err := auth.NewVerificationChallenge(
			postgres.NewVerificationCodeRepository(testPool),
			[]byte("integration-code-secret-0123456789"),
			auth.WithCodeGenerator(func() (string, error) { return "654321", nil }),
		)
		Expect(err).NotTo(HaveOccurred())
		_, err = challenge.Issue(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())

		Expect(challenge.Check(ctx, account.ID, "654321")).To(Succeed())
		err = challenge.Check(ctx, account.ID, "654321")
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("refuses to mark a code used once its attempts are spent", func() {
		ctx := context.Background()
		repo := postgres.NewVerificationCodeRepository(testPool)
		account := createAccount(ctx)
		now := time.Now().UTC()
		code := &auth.VerificationCode{
			ID:          ulid.Make(),
			AccountID:   account.ID,
			CodeHash:    "digest",
			CreatedAt:   now,
			ExpiresAt:   now.Add(auth.VerificationCodeTTL),
			MaxAttempts: auth.MaxVerificationAttempts,
		}
		Expect(repo.Create(ctx, code)).To(Succeed())

		for range auth.MaxVerificationAttempts {
			_, err := repo.IncrementAttempts(ctx, code.ID)
			Expect(err).NotTo(HaveOccurred())
		}
		err := repo.MarkUsed(ctx, code.ID, now)
		Expect(errors.Is(err, auth.ErrAttemptsExceeded)).To(BeTrue())
	})

})

var _ = Describe("SocialLinkRepository", func() {
	It("enforces one link per provider identity", func() {
		ctx := context.Background()
		repo := postgres.NewSocialLinkRepository(testPool)
		owner := createAccount(ctx)
		other := createAccount(ctx)
		providerID := ulid.Make().String()

		link := &auth.SocialLink{
			ID: ulid.Make(), AccountID: owner.ID, Provider: auth.ProviderGoogle,
			ProviderID: providerID, ProviderEmail: owner.Email,
			ProviderData: []byte(`{"sub":"x"}`), CreatedAt: time.Now().UTC(),
		}
		Expect(repo.Create(ctx, link)).To(Succeed())

		dup := *link
		dup.ID = ulid.Make()
		dup.AccountID = other.ID
		Expect(errors.Is(repo.Create(ctx, &dup), auth.ErrDuplicate)).To(BeTrue())

		got, err := repo.GetByProviderID(ctx, auth.ProviderGoogle, providerID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.AccountID).To(Equal(owner.ID))
		Expect(got.ProviderData).To(MatchJSON(`{"sub":"x"}`))

		links, err := repo.ListByAccount(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(links).To(HaveLen(1))
	})
})

var _ = Describe("PasswordResetRepository", func() {
	It("deletes expired resets", func() {
		ctx := context.Background()
		repo := postgres.NewPasswordResetRepository(testPool)
		account := createAccount(ctx)

		_, hash, err := auth.GenerateResetToken()
		Expect(err).NotTo(HaveOccurred())
		reset, err := auth.NewPasswordReset(account.ID, hash, time.Now().Add(-time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, reset)).To(Succeed())

		n, err := repo.DeleteExpired(ctx, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 1))

		_, err = repo.Consume(ctx, hash)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("lets exactly one concurrent caller consume a token", func() {
		ctx := context.Background()
		repo := postgres.NewPasswordResetRepository(testPool)
		account := createAccount(ctx)

		_, hash, err := auth.GenerateResetToken()
		Expect(err).NotTo(HaveOccurred())
		reset, err := auth.NewPasswordReset(account.ID, hash, time.Now().Add(auth.ResetTokenExpiry))
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, reset)).To(Succeed())

		const workers = 8
		var (
			wg   sync.WaitGroup
			won  atomic.Int32
			lost atomic.Int32
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := repo.Consume(ctx, hash)
				switch {
				case err == nil:
					won.Add(1)
				case errors.Is(err, auth.ErrNotFound):
					lost.Add(1)
				}
			}()
		}
		wg.Wait()

		Expect(won.Load()).To(Equal(int32(1)))
		Expect(lost.Load()).To(Equal(int32(workers - 1)))
	})
})
