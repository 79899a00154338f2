// Command jamrec records multi-client jam sessions delivered by an audio
// server over the ingest socket and exports them as REAPER and Audacity
// projects.
//
//	jamrec serve                  record until interrupted
//	jamrec export <session-dir>   rebuild the .rpp of a finished session
//	jamrec tracks <session-dir>   list the tracks found in a session
//	jamrec config init [path]     write a sample configuration
//	jamrec version
package main
