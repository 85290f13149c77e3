// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jwtauth validates RS256-signed bearer tokens against a
// multi-tenant JWKS cache. A single Validator serves any number of
// issuers: the JWKS cache key is the (jwks_uri, kid) pair, so tokens
// from unrelated tenants never contend for the same cache entry.
package jwtauth
