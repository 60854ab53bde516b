// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth is the credential and session lifecycle engine.
//
// # Components
//
// Leaf components are usable on their own:
//   - PasswordHasher (Argon2idHasher) - argon2id digests, legacy bcrypt verification
//   - TokenCodec - HS256 access (15m) and refresh (7d) tokens with distinct secrets
//   - SessionStore - refresh token fingerprints with one-shot rotation
//   - VerificationChallenge - 6-digit email codes, 15m lifetime, 5 attempts
//   - SocialIdentityResolver - provider code exchange and account linking
//
// CredentialService composes them into the register, login, email
// verification, refresh, logout, social and password reset flows.
//
// # Errors
//
// Components return oops errors wrapping one reason sentinel (ErrNotFound,
// ErrRevoked, ...). Flows additionally tag every error with a Kind, so callers
// switch on KindOf(err) while errors.Is still reaches the reason.
//
// # Persistence
//
// Repository interfaces are declared here and implemented by the postgres
// and memstore subpackages. Implementations must make Consume,
// IncrementAttempts and MarkUsed single compare-and-set operations.
package auth
