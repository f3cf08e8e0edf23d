package main

import "gopkg.in/alecthomas/kingpin.v2"

type commander interface {
	Flag(name, help string) *kingpin.FlagClause
	Arg(name, help string) *kingpin.ArgClause
}
