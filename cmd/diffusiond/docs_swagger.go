//go:build swagger

package main

import _ "diffusiond/docs"
