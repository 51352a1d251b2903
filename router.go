package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

type Handler func(env *Environment, w http.ResponseWriter, r *http.Request, params httprouter.Params)

// Router wraps httprouter so every handler receives the Environment.
type Router struct {
	env    *Environment
	router *httprouter.Router
}

func NewRouter(env *Environment, notFound Handler) *Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notFound(env, w, r, nil)
	})
	return &Router{env: env, router: router}
}

func (r *Router) Handle(method string, path string, handle Handler) {
	env := r.env
	r.router.Handle(method, path, func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
		handle(env, w, req, params)
	})
}

func (r *Router) Handler() http.Handler {
	return r.router
}
