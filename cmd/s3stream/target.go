package main

import (
	"fmt"
	"path"
	"strings"
)

const s3Scheme = "s3://"

type target struct {
	Bucket string
	Key    string
}

func (t target) String() string {
	return s3Scheme + t.Bucket + "/" + t.Key
}

// isPrefix reports whether the target names a "directory" the sources are uploaded into.
func (t target) isPrefix() bool {
	return t.Key == "" || strings.HasSuffix(t.Key, "/")
}

// join returns the target for name below a prefix target.
func (t target) join(name string) target {
	return target{Bucket: t.Bucket, Key: t.Key + path.Base(name)}
}

func isTarget(s string) bool {
	return strings.HasPrefix(s, s3Scheme)
}

// parseTarget parses an s3://bucket/key URL.
func parseTarget(s string) (target, error) {
	if !isTarget(s) {
		return target{}, fmt.Errorf("invalid target %s: must start with %s", s, s3Scheme)
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(s, s3Scheme), "/")
	if bucket == "" {
		return target{}, fmt.Errorf("invalid target %s: bucket must not be empty", s)
	}
	return target{Bucket: bucket, Key: key}, nil
}

// parseObject parses an s3://bucket/key URL that has to name a single object.
func parseObject(s string) (target, error) {
	t, err := parseTarget(s)
	if err != nil {
		return target{}, err
	}
	if t.isPrefix() {
		return target{}, fmt.Errorf("invalid target %s: key must not be empty or end with /", s)
	}
	return t, nil
}
