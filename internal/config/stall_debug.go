//go:build debug

package config

const stallDetectionDefault = true
