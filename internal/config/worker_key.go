package config

type WorkerKeyStruct struct {
	PersistSubmissionsQueue string
	PersistProctorQueue     string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSubmissionsQueue: "persist_submissions_queue",
	PersistProctorQueue:     "persist_proctor_queue",
}
