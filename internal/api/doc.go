// Package api serves the host HTTP surface used by the browser and by the
// assistant backend.
//
// # Routes
//
//	GET    /health                 no auth
//	POST   /api/chat               session
//	GET    /api/sessions           chat_completion
//	GET    /api/sessions/{id}      chat_completion
//	DELETE /api/sessions/{id}      chat_completion
//	POST   /api/search             search
//	GET    /api/keyword-search     search
//	POST   /api/check-access       check_access
//	POST   /api/smw                smw_query
//	POST   /api/edit               mw_action
//	POST   /api/delete             mw_action
//	POST   /api/chatlog            session, logged in
//	GET    /api/embeddings/stats   session
//	POST   /api/embeddings/batch   session
//
// A scope-gated route accepts either a backend bearer assertion carrying the
// scope, or a session whose user holds the assistant-use right. Bearer
// callers name the user they act for with a username parameter; that user's
// permissions decide every per-page question.
//
// Routes that forward to the backend answer 503 while the assistant is
// disabled.
package api
