package config

type WorkerKeyStruct struct {
	PersistAlertsQueue  string
	PersistResultsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAlertsQueue:  "persist_alerts_queue",
	PersistResultsQueue: "persist_results_queue",
}
