/*
Package storage provides persistence for deployment records.

The pipeline never owns a Deployment record: it holds an identifier and
issues partial-field updates through the Store interface. Two drivers are
provided.

# Architecture

	┌──────────────────── STORAGE ─────────────────────────────┐
	│                                                           │
	│   tracker / pipeline / api                                │
	│            │                                              │
	│            ▼                                              │
	│   ┌─────────────────┐                                     │
	│   │  Store (iface)  │  UpdateDeploymentFields(id, update) │
	│   └───────┬─────────┘                                     │
	│           │                                               │
	│     ┌─────┴──────────────┐                                │
	│     ▼                    ▼                                │
	│  BoltStore           PostgresStore                        │
	│  - <dataDir>/        - deployments table                  │
	│    modelhost.db      - SELECT ... FOR UPDATE              │
	│  - one writer tx     - pgx stdlib driver                  │
	└───────────────────────────────────────────────────────────┘

# Partial Updates

UpdateDeploymentFields reads the current record, validates the update and
writes the merged result inside one transaction, so two stages updating
different fields of the same record never lose each other's writes. A
status change against an InService or Failed record is refused with
types.ErrTerminalStatus; the record is left untouched.

No compensating rollback exists: fields written by an earlier stage stay in
place when a later stage fails.

# Drivers

	store:
	  driver: bolt            # default
	  dataDir: ./modelhost-data

	store:
	  driver: postgres
	  postgres:
	    url: postgres://modelhost:secret@db:5432/modelhost?sslmode=disable
	    pingTimeout: 2s
	    maxOpenConns: 10
*/
package storage
