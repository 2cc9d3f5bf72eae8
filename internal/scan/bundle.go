package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	errMessageBundleIsArray      = "bundle must be an object with following and followers lists, not a bare array"
	errMessageBundleMissingLists = "bundle carries neither a following nor a followers list"
	errMessageBundleInvalidJSON  = "bundle is not valid JSON"
	bundleArrayOpeningCharacter  = '['
)

var (
	// ErrBundleIsArray indicates that a bare list was pasted where a structured bundle was expected.
	ErrBundleIsArray = errors.New(errMessageBundleIsArray)
	// ErrBundleMissingLists indicates that the bundle object had no recognised list.
	ErrBundleMissingLists = errors.New(errMessageBundleMissingLists)
)

// Bundle is the structured object emitted by the console extraction script.
type Bundle struct {
	Following []string `json:"following"`
	Followers []string `json:"followers"`
	ScanDate  int64    `json:"scanDate"`
}

// ParseBundle decodes a pasted extraction bundle. Unlike the normalizer, it reports
// why the text was rejected so the caller can explain the problem to the user.
func ParseBundle(rawText []byte) (Bundle, error) {
	trimmed := bytes.TrimSpace(rawText)
	if len(trimmed) > 0 && trimmed[0] == bundleArrayOpeningCharacter && json.Valid(trimmed) {
		return Bundle{}, ErrBundleIsArray
	}
	var bundle Bundle
	if err := json.Unmarshal(trimmed, &bundle); err != nil {
		return Bundle{}, fmt.Errorf("%s: %w", errMessageBundleInvalidJSON, err)
	}
	if bundle.Following == nil && bundle.Followers == nil {
		return Bundle{}, ErrBundleMissingLists
	}
	return bundle, nil
}
