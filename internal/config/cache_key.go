package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TokenKey returns the cache key holding the bearer token of a profile.
func (r *CacheKeyStruct) TokenKey(profile string) string {
	return fmt.Sprintf("proctor:token:%s", profile)
}

var CacheKey = NewCacheKeyStruct()
