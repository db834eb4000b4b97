package qa

// Question is an opaque value typed by a QuestionVTable. The engine
// never inspects a Question's contents directly; every operation goes
// through the owning vtable.
type Question interface{}

// Answer is an opaque value typed by an AnswerVTable.
type Answer interface{}

// AnswerVTable names the class of answers a question produces and
// supplies the capabilities the engine needs to treat them uniformly:
// equality, cloning, destruction, and a deterministic round-trip
// serialization used as a database value.
type AnswerVTable interface {
	// Equal reports whether a1 and a2 are semantically identical.
	// Equality of Serialize(a1) and Serialize(a2) must imply Equal.
	Equal(a1, a2 Answer) bool

	// Replicate returns an independent copy of a, suitable for
	// transferring into a future's join slot or the caller's
	// ownership.
	Replicate(a Answer) Answer

	// Deallocate releases any resources held by a. Called exactly
	// once per value that is never transferred elsewhere.
	Deallocate(a Answer)

	// Serialize produces a deterministic, stable-across-runs byte
	// encoding of a.
	Serialize(a Answer) ([]byte, error)

	// Deserialize is the inverse of Serialize; round-tripping a value
	// through Serialize then Deserialize must yield an Equal value.
	Deserialize(data []byte) (Answer, error)
}

// QuestionVTable ties a class of questions to its identity, equality,
// clone, destroy, serialization, and live-answer operations. The UUID
// is the registration key: two vtables sharing a UUID is a
// programming error (see Registry.Register).
type QuestionVTable interface {
	// UUID uniquely identifies this question class across runs.
	UUID() UUID

	// AnswerVTable names the class of answers this question produces.
	AnswerVTable() AnswerVTable

	// Answer computes the current real-world answer to q. Must be
	// side-effect free with respect to the build graph — it may read
	// system state (files, env vars) but must not mutate it.
	Answer(q Question) (Answer, error)

	// Equal reports whether q1 and q2 are the same question.
	Equal(q1, q2 Question) bool

	// Replicate returns an independent copy of q.
	Replicate(q Question) Question

	// Deallocate releases any resources held by q.
	Deallocate(q Question)

	// Serialize produces a deterministic, stable-across-runs byte
	// encoding of q, used as the database key.
	Serialize(q Question) ([]byte, error)

	// Deserialize is the inverse of Serialize.
	Deserialize(data []byte) (Question, error)
}
