// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package authz gates call_method dispatch on an enabled server connector
// by the calling client's POSIX credentials, using a Casbin ACL model.
//
// # Model
//
// The request tuple is (subject, object, action), where subject is the
// caller's uid rendered as a decimal string, object is the interface id the
// method belongs to, and action is the method id rendered as a decimal
// string:
//
//	[request_definition]
//	r = sub, obj, act
//
//	[policy_definition]
//	p = sub, obj, act
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
//
// A nil *Enforcer (the zero value a server.Connector gets when none is
// supplied) allows every call, matching spec.md's "the enforcer is optional,
// defaulting to allow-all" rule: socrt's core method-dispatch behavior is
// unchanged when authorization is not configured.
package authz
