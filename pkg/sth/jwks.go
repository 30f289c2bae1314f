package sth

import (
	"github.com/go-jose/go-jose/v4"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// JWKS renders the keyring's public keys (only) as a JSON Web Key Set,
// the shape published at /.well-known/tecp-log-jwks. Private key
// material never enters a KeyEntry, so there is nothing to redact here.
func (k *Keyring) JWKS() (*jose.JSONWebKeySet, error) {
	snap := k.Snapshot()
	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(snap))}
	for kid, e := range snap {
		if e.PubKey == nil {
			return nil, errcodes.New(errcodes.EKeyUnknown, "keyring entry "+kid+" has no public key")
		}
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       e.PubKey,
			KeyID:     kid,
			Algorithm: "EdDSA",
			Use:       "sig",
		})
	}
	return set, nil
}
