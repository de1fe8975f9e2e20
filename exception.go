package async

// exceptionHolder defers an unhandled task failure until it is either
// observed (by Await or Select returning the task) or the runtime decides
// nobody ever will. Escalation happens from a scheduled microtask right
// after the owning task terminates, see Task.finish.
type exceptionHolder struct {
	err      error
	observed bool
}
