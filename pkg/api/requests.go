package api

// maxMessageLength caps a single chat message.
const maxMessageLength = 100_000

// maxPageSize caps GET /threads?first=.
const maxPageSize = 100
