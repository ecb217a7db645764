// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the pluggable boundaries of the workmate
// service: how callers are authenticated and how user profiles are looked
// up. The orchestrator wires JWT and MySQL implementations by default; tests
// and alternative deployments inject their own through ServiceOptions.
package extensions

// ServiceOptions carries optional overrides for orchestrator.New.
//
// A nil field means "use the built-in implementation".
type ServiceOptions struct {
	AuthProvider  AuthProvider
	UserDirectory UserDirectory
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithUsers returns a copy of opts with the given UserDirectory.
func (opts ServiceOptions) WithUsers(dir UserDirectory) ServiceOptions {
	opts.UserDirectory = dir
	return opts
}
