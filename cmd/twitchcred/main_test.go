package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twitchdev/credprovider/config"
	"github.com/twitchdev/credprovider/twitchapi"
)

func TestBuildIdentityService_DefaultsToHTTP(t *testing.T) {
	cfg := &config.Config{}

	svc := buildIdentityService(cfg)

	_, ok := svc.(*twitchapi.HTTPIdentityService)
	assert.True(t, ok, "expected default identity_service type to build HTTPIdentityService")
}

func TestBuildIdentityService_ExplicitHTTP(t *testing.T) {
	cfg := &config.Config{}
	cfg.IdentityService.Type = "http"

	svc := buildIdentityService(cfg)

	_, ok := svc.(*twitchapi.HTTPIdentityService)
	assert.True(t, ok)
}

func TestBuildIdentityService_OAuth2(t *testing.T) {
	cfg := &config.Config{}
	cfg.IdentityService.Type = "oauth2"

	svc := buildIdentityService(cfg)

	_, ok := svc.(*twitchapi.OAuth2IdentityService)
	assert.True(t, ok, "expected \"oauth2\" identity_service type to build OAuth2IdentityService")
}

func TestBuildStore_Variants(t *testing.T) {
	tests := []struct {
		name        string
		storageType string
		wantErr     bool
	}{
		{"memory default", "", false},
		{"memory explicit", "memory", false},
		{"static", "static", false},
		{"unknown", "s3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{ClientID: "c"}
			cfg.Storage.Type = tt.storageType

			_, err := buildStore(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
