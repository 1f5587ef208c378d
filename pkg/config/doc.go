/*
Package config loads agent configuration from a YAML file and environment.

Precedence is env (GYANPATH_*) over file over defaults. The loaded Config is
passed explicitly to components at construction; cache naming in particular is
driven by CacheGeneration, which builds inject as a content hash so a new
release invalidates the shell cache without a hand-maintained version bump.
*/
package config
