// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package mapper

import (
	"maps"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/mia-platform/transfer/internal/mapper/functions"
)

// customFunctions are added on top of the sprig library, replacing the sprig function with the same name.
var customFunctions = template.FuncMap{
	// strings
	"quote":      functions.Quote,
	"trim":       functions.TrimSpace,
	"trimPrefix": functions.TrimPrefix,
	"trimSuffix": functions.TrimSuffix,
	"replace":    functions.Replace,
	"upper":      functions.ToUpper,
	"lower":      functions.ToLower,
	"truncate":   functions.Truncate,
	"split":      functions.Split,
	"b64enc":     functions.EncodeBase64,
	"b64dec":     functions.DecodeBase64,

	// lists
	"list":    functions.List,
	"append":  functions.Append,
	"prepend": functions.Prepend,
	"first":   functions.First,
	"last":    functions.Last,
	"pluck":   functions.Pluck,

	// objects
	"dict":   functions.Object,
	"toJSON": functions.ToJSON,
	"pick":   functions.Pick,
	"get":    functions.Get,
	"set":    functions.Set,

	// crypto
	"sha256sum": functions.Sha256Sum,
	"sha512sum": functions.Sha512Sum,

	// time
	"now": functions.Now,

	// uuid
	"uuidv4": functions.UUIDV4,
	"uuidv6": functions.UUIDV6,
	"uuidv7": functions.UUIDV7,
}

// templateFunctions returns the functions available to every mapper and filter template.
func templateFunctions() template.FuncMap {
	funcMap := sprig.TxtFuncMap()
	maps.Copy(funcMap, customFunctions)
	return funcMap
}
