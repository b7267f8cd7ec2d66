// Package policy evaluates commands against the rule set and produces
// verdicts, fact mutations, and effects.
//
// Evaluation is the only writer of derived state. Each command is judged in
// isolation against a fact transaction; the rule either accepts (buffered
// mutations plus staged effects, committed together by the caller) or
// rejects (a Rejection verdict, nothing committed). Rules are deterministic
// functions of the command and fact state, which is what lets partitioned
// devices converge after a merge: same commands, same order, same facts.
//
// Effects flow through a Sink so a rule that fails midway leaves no partial
// output. VecSink is the standard collector.
package policy
