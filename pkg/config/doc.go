/*
Package config parses table properties into a typed configuration.

Keys under the reserved prefixes (delta., merge., autoMerge.) must be
recognized; anything else is a user property and passes through untouched.
CHECK constraint expressions ride under delta.constraints.<name> and are
extracted with Constraints.
*/
package config
